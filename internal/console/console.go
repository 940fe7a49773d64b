// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

// Package console opens an interactive SSH shell on the mainframe CPU
// for maintenance that the wire protocol does not cover.
package console

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds the SSH endpoint and host-key policy of a console session.
type Config struct {
	Address  string
	Username string
	Password string

	SkipHostKeyValidation bool
	KnownHostsFile        string
}

func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, path[1:]), nil
	}
	return path, nil
}

func hostKeyCallback(config Config) (ssh.HostKeyCallback, error) {
	if config.SkipHostKeyValidation {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	expandedPath, err := expandPath(config.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to expand known_hosts file path: %w", err)
	}
	callback, err := knownhosts.New(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse known_hosts file: %w", err)
	}
	return callback, nil
}

// Open connects to the crate CPU and runs an interactive shell on the
// caller's terminal until the remote side closes the session.
func Open(config Config) error {
	callback, err := hostKeyCallback(config)
	if err != nil {
		return err
	}

	sshConfig := &ssh.ClientConfig{
		User: config.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(config.Password),
		},
		HostKeyCallback: callback,
	}

	address := config.Address
	if !strings.Contains(address, ":") {
		address = net.JoinHostPort(address, "22")
	}
	conn, err := ssh.Dial("tcp", address, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to crate CPU: %w", err)
	}
	defer func(conn *ssh.Client) {
		if err := conn.Close(); err != nil {
			log.Printf("failed to close SSH connection: %v", err)
		}
	}(conn)

	session, err := conn.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer func(session *ssh.Session) {
		if err := session.Close(); err != nil && err != io.EOF {
			log.Printf("failed to close SSH session: %v", err)
		}
	}(session)

	if err := session.RequestPty("xterm", 80, 40, ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}); err != nil {
		return fmt.Errorf("failed to request pseudo-terminal: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("could not get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("could not get stdout pipe: %w", err)
	}

	go func() {
		if _, err := io.Copy(os.Stdout, stdout); err != nil {
			log.Printf("failed to copy stdout: %s", err)
		}
	}()

	if err := session.Shell(); err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}

	log.Println("Crate console session active. Press Ctrl+D to exit.")
	go func() {
		if _, err := io.Copy(stdin, os.Stdin); err != nil {
			log.Printf("failed to copy stdin: %s", err)
		}
	}()

	if err := session.Wait(); err != nil {
		return fmt.Errorf("error during console session: %v", err)
	}
	return nil
}
