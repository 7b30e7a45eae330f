package registry

import (
	"io"
	"log/slog"
	"sync"

	"github.com/serhatdk/passage/internal/sshx"
	"golang.org/x/crypto/ssh"
)

// entry owns every live remote handle of one session. Invariant: at most
// one transport, one shell stream and one file capability per session.
type entry struct {
	transport *ssh.Client
	shell     io.Closer
	fs        sshx.RemoteFS
	fsCloser  io.Closer
}

// detach strips every handle off the entry and returns them in teardown
// order. Closing happens outside the registry lock: a shell's close path
// calls back into the registry and must not find the mutex held.
func (e *entry) detach() []io.Closer {
	var stale []io.Closer
	if e.shell != nil {
		stale = append(stale, e.shell)
		e.shell = nil
	}
	if e.fsCloser != nil {
		stale = append(stale, e.fsCloser)
		e.fs = nil
		e.fsCloser = nil
	}
	if e.transport != nil {
		stale = append(stale, e.transport)
		e.transport = nil
	}
	return stale
}

func closeHandles(handles []io.Closer) {
	for _, h := range handles {
		h.Close()
	}
}

// Registry maps session identifiers to live remote handles. It is the only
// cross-request shared mutable state and the sole serialization point:
// every mutation happens under the registry mutex.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

func (r *Registry) get(sessionID string) *entry {
	e, ok := r.sessions[sessionID]
	if !ok {
		e = &entry{}
		r.sessions[sessionID] = e
	}
	return e
}

// SetTransport binds a transport to the session. A prior transport, along
// with any shell or file capability opened on it, is closed first so a
// reconnect never leaks the old connection.
func (r *Registry) SetTransport(sessionID string, client *ssh.Client) {
	r.mu.Lock()
	e := r.get(sessionID)
	var stale []io.Closer
	if e.transport != nil {
		slog.Debug("Replacing live transport", "session", sessionID)
		stale = e.detach()
	}
	e.transport = client
	r.mu.Unlock()

	closeHandles(stale)
}

// SetShell binds a shell stream to the session, closing any prior one.
func (r *Registry) SetShell(sessionID string, shell io.Closer) {
	r.mu.Lock()
	e := r.get(sessionID)
	prior := e.shell
	e.shell = shell
	r.mu.Unlock()

	if prior != nil {
		prior.Close()
	}
}

// SetFS binds a file capability to the session, closing any prior one.
// closer may equal fs; it is what teardown invokes.
func (r *Registry) SetFS(sessionID string, fs sshx.RemoteFS, closer io.Closer) {
	r.mu.Lock()
	e := r.get(sessionID)
	prior := e.fsCloser
	e.fs = fs
	e.fsCloser = closer
	r.mu.Unlock()

	if prior != nil {
		prior.Close()
	}
}

// Transport returns the session's live transport, if any.
func (r *Registry) Transport(sessionID string) (*ssh.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok || e.transport == nil {
		return nil, false
	}
	return e.transport, true
}

// FS returns the session's file capability, if any.
func (r *Registry) FS(sessionID string) (sshx.RemoteFS, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok || e.fs == nil {
		return nil, false
	}
	return e.fs, true
}

// HasShell reports whether the session has a live shell stream.
func (r *Registry) HasShell(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	return ok && e.shell != nil
}

// Active reports whether the session holds any live handle. Completion
// callbacks check this before emitting to avoid writing to a torn-down
// client channel.
func (r *Registry) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[sessionID]
	return ok
}

// ClearShell detaches the given shell handle without closing it. Called from
// the shell's own close path so teardown does not double-close the stream.
// The identity check keeps a late close of a dead shell from detaching a
// replacement bound in the meantime.
func (r *Registry) ClearShell(sessionID string, shell io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[sessionID]; ok && e.shell == shell {
		e.shell = nil
	}
}

// Close tears down every handle of the session and removes the entry.
// Safe to call for an unknown session and safe to call twice.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	stale := e.detach()
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	closeHandles(stale)
	slog.Debug("Session torn down", "session", sessionID)
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll tears down every session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var stale []io.Closer
	for id, e := range r.sessions {
		stale = append(stale, e.detach()...)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	closeHandles(stale)
	slog.Info("All remote connections closed")
}
