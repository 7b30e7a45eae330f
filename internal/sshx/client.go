package sshx

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

const dialTimeout = 10 * time.Second

// Credentials are the parameters for one remote connection. They are
// supplied fresh on every connect request and never mutated.
type Credentials struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey string
	AuthType   string // "password" or "key"
	WorkDir    string
}

func (c Credentials) addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, fmt.Sprint(port))
}

func (c Credentials) clientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	switch c.AuthType {
	case "key":
		signer, err := ssh.ParsePrivateKey([]byte(c.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	default: // password
		authMethods = append(authMethods, ssh.Password(c.Password))
	}

	return &ssh.ClientConfig{
		User:            c.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}, nil
}

// Dial opens an authenticated transport to the remote host.
func Dial(creds Credentials) (*ssh.Client, error) {
	config, err := creds.clientConfig()
	if err != nil {
		return nil, err
	}

	client, err := ssh.Dial("tcp", creds.addr(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", creds.addr(), err)
	}
	return client, nil
}

// Fingerprint dials the host once, runs a probe command and returns the
// host key fingerprint. Used by the saved-connection test endpoint.
func Fingerprint(creds Credentials) (string, error) {
	config, err := creds.clientConfig()
	if err != nil {
		return "", err
	}

	var fingerprint string
	config.HostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fingerprint = ssh.FingerprintSHA256(key)
		return nil
	}

	client, err := ssh.Dial("tcp", creds.addr(), config)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fingerprint, fmt.Errorf("session failed: %w", err)
	}
	defer session.Close()

	if _, err := session.Output("echo ok"); err != nil {
		return fingerprint, fmt.Errorf("test command failed: %w", err)
	}
	return fingerprint, nil
}

// Runner executes one shell command on the remote host, collecting stdout
// and stderr in full and reporting the process exit status. A nil error
// with a non-zero exit code means the command ran and failed.
type Runner interface {
	Run(cmd string) (stdout, stderr string, exitCode int, err error)
}

// ClientRunner runs commands through fresh exec sessions on one transport.
type ClientRunner struct {
	Client *ssh.Client
}

func (r *ClientRunner) Run(cmd string) (string, string, int, error) {
	session, err := r.Client.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("SSH session failed: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	runErr := session.Run(cmd)
	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			return outBuf.String(), errBuf.String(), exitErr.ExitStatus(), nil
		}
		// Stream-level failure, no exit status available.
		return outBuf.String(), errBuf.String(), -1, runErr
	}
	return outBuf.String(), errBuf.String(), 0, nil
}
