// Package relay binds one client-facing event channel to one remote
// interactive shell. Keystroke lines travel client → remote verbatim;
// remote stdout and stderr travel back as UTF-8 output chunks.
package relay

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/serhatdk/passage/internal/fileops"
	"github.com/serhatdk/passage/internal/protocol"
	"golang.org/x/crypto/ssh"
)

// Shell is one live interactive shell stream. Lifecycle:
// Connecting (inside Open) → Ready → Closed. Closed is terminal and is
// reached exactly once from whichever comes first of stream close, explicit
// Close, or session teardown.
type Shell struct {
	session *ssh.Session
	stdin   io.WriteCloser

	closeOnce sync.Once
	onClose   func(*Shell)
}

// Open requests a PTY and an interactive shell on the transport, emits the
// connected notification, and starts the output pumps. onClose fires exactly
// once when the stream ends, however it ends, and receives the shell so the
// caller can tell which stream it was.
func Open(client *ssh.Client, workdir string, sink protocol.EventSink, onClose func(*Shell)) (*Shell, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm-256color", 24, 80, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to request PTY: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	s := &Shell{session: session, stdin: stdin, onClose: onClose}

	sink.Emit(protocol.Connected("Connected to remote host"))

	if workdir != "" {
		// Same quoting as the synthesized file commands; errors surface
		// through the shell's own stderr.
		s.Send("cd " + fileops.Quote(workdir))
	}

	// stdout pump ending means the shell is gone; stderr pump just drains.
	go func() {
		pump(stdout, sink)
		s.Close()
	}()
	go pump(stderr, sink)

	return s, nil
}

// Send writes one command line to the shell, appending the line terminator.
// No parsing or validation: this is a raw pass-through terminal.
func (s *Shell) Send(command string) error {
	_, err := s.stdin.Write([]byte(command + "\n"))
	return err
}

// Close ends the shell stream. Idempotent; fires onClose exactly once.
func (s *Shell) Close() error {
	s.closeOnce.Do(func() {
		s.session.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
	return nil
}

// pump forwards remote output to the sink as it arrives, in order, holding
// back only the trailing bytes of an incomplete UTF-8 sequence until the
// next read completes it. No line buffering, no ANSI parsing.
func pump(r io.Reader, sink protocol.EventSink) {
	buf := make([]byte, 4096)
	var pending []byte

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			complete, tail := splitCompleteUTF8(pending)
			if len(complete) > 0 {
				if emitErr := sink.Emit(protocol.Output(string(complete))); emitErr != nil {
					slog.Debug("Output emit failed, client channel gone", "error", emitErr)
					return
				}
			}
			pending = tail
		}
		if err != nil {
			if len(pending) > 0 {
				sink.Emit(protocol.Output(string(pending)))
			}
			return
		}
	}
}

// splitCompleteUTF8 returns the longest prefix of b ending on a complete
// UTF-8 sequence, plus the leftover tail. Invalid bytes are passed through
// rather than held forever.
func splitCompleteUTF8(b []byte) (complete, tail []byte) {
	if len(b) == 0 {
		return b, nil
	}
	// Find the start of the last rune within the final UTFMax bytes.
	start := len(b) - 1
	limit := len(b) - utf8.UTFMax
	if limit < 0 {
		limit = 0
	}
	for start > limit && b[start]&0xC0 == 0x80 {
		start--
	}
	if b[start]&0xC0 == 0x80 {
		// No rune start in range: not valid UTF-8, forward everything.
		return b, nil
	}
	if utf8.FullRune(b[start:]) {
		return b, nil
	}
	return b[:start], b[start:]
}
