// Package sshtest runs a minimal in-process SSH server for tests: password
// auth, exec with configurable outcomes, and a line-echo interactive shell.
package sshtest

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// ExecFunc decides the outcome of one exec request.
type ExecFunc func(cmd string) (stdout, stderr string, exit int)

type Server struct {
	listener net.Listener
	config   *ssh.ServerConfig

	mu      sync.Mutex
	exec    ExecFunc
	denyPTY bool
	done    chan struct{}
}

// New starts a server on a random loopback port accepting the given
// user/password pair.
func New(user, password string) (*Server, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		return nil, err
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == user && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("authentication failed")
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		config:   config,
		exec:     defaultExec,
		done:     make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns host:port of the listener.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Port returns the listening port.
func (s *Server) Port() int { return s.listener.Addr().(*net.TCPAddr).Port }

// SetExec overrides the exec behavior.
func (s *Server) SetExec(f ExecFunc) {
	s.mu.Lock()
	s.exec = f
	s.mu.Unlock()
}

func (s *Server) execFunc() ExecFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec
}

// DenyPTY makes the server refuse pty requests, so interactive shell setup
// fails after authentication succeeds.
func (s *Server) DenyPTY() {
	s.mu.Lock()
	s.denyPTY = true
	s.mu.Unlock()
}

func (s *Server) ptyDenied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.denyPTY
}

// Close stops the server.
func (s *Server) Close() error {
	close(s.done)
	return s.listener.Close()
}

func defaultExec(cmd string) (string, string, int) {
	if strings.HasPrefix(cmd, "echo ") {
		return strings.TrimPrefix(cmd, "echo ") + "\n", "", 0
	}
	return "", "command not found: " + cmd + "\n", 127
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(channel, requests)
	}
}

type exitStatusMsg struct {
	Status uint32
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "pty-req":
			req.Reply(!s.ptyDenied(), nil)
		case "env", "window-change":
			req.Reply(true, nil)
		case "exec":
			req.Reply(true, nil)
			cmd := parseExecPayload(req.Payload)
			stdout, stderr, exit := s.execFunc()(cmd)
			io.WriteString(channel, stdout)
			io.WriteString(channel.Stderr(), stderr)
			channel.SendRequest("exit-status", false, ssh.Marshal(exitStatusMsg{Status: uint32(exit)}))
			channel.Close()
			return
		case "shell":
			req.Reply(true, nil)
			go s.shellLoop(channel)
		default:
			req.Reply(false, nil)
		}
	}
}

// shellLoop echoes `echo` command lines back, the way tests expect a remote
// shell to behave.
func (s *Server) shellLoop(channel ssh.Channel) {
	defer channel.Close()

	buf := make([]byte, 1024)
	var line strings.Builder
	for {
		n, err := channel.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			if b != '\n' && b != '\r' {
				line.WriteByte(b)
				continue
			}
			cmd := line.String()
			line.Reset()
			if cmd == "" {
				continue
			}
			if cmd == "exit" {
				return
			}
			stdout, stderr, _ := s.execFunc()(cmd)
			io.WriteString(channel, stdout)
			io.WriteString(channel.Stderr(), stderr)
		}
	}
}

func parseExecPayload(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	length := int(payload[0])<<24 | int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	if length > len(payload)-4 {
		length = len(payload) - 4
	}
	return string(payload[4 : 4+length])
}
