// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hv

import "fmt"

// ErrorCode is the wrapper-level error taxonomy reported by the mainframe.
type ErrorCode int

const (
	CodeOk ErrorCode = iota
	CodeSysErr
	CodeWriteErr
	CodeReadErr
	CodeTimeErr
	CodeDown
	CodeNotPresent
	CodeSlotNotPresent
	CodeOutOfRange
	CodeExecComNotImpl
	CodeParamNotFound
	CodePropNotFound
	CodeLoginFailed
	CodeNotConnected
	CodeCommError
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOk:
		return "Ok"
	case CodeSysErr:
		return "SysErr"
	case CodeWriteErr:
		return "WriteErr"
	case CodeReadErr:
		return "ReadErr"
	case CodeTimeErr:
		return "TimeErr"
	case CodeDown:
		return "Down"
	case CodeNotPresent:
		return "NotPresent"
	case CodeSlotNotPresent:
		return "SlotNotPresent"
	case CodeOutOfRange:
		return "OutOfRange"
	case CodeExecComNotImpl:
		return "ExecComNotImpl"
	case CodeParamNotFound:
		return "ParamNotFound"
	case CodePropNotFound:
		return "PropNotFound"
	case CodeLoginFailed:
		return "LoginFailed"
	case CodeNotConnected:
		return "NotConnected"
	case CodeCommError:
		return "CommError"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// Error is a mainframe error with its wrapper error code.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is match on the error code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors for errors.Is checks.
var (
	ErrLoginFailed    = &Error{Code: CodeLoginFailed}
	ErrNotConnected   = &Error{Code: CodeNotConnected}
	ErrSlotNotPresent = &Error{Code: CodeSlotNotPresent}
	ErrParamNotFound  = &Error{Code: CodeParamNotFound}
	ErrPropNotFound   = &Error{Code: CodePropNotFound}
	ErrOutOfRange     = &Error{Code: CodeOutOfRange}
	ErrWriteErr       = &Error{Code: CodeWriteErr}
	ErrReadErr        = &Error{Code: CodeReadErr}
	ErrDown           = &Error{Code: CodeDown}
)
