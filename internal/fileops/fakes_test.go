package fileops_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/serhatdk/passage/internal/protocol"
)

var errUnsupported = errors.New("capability unavailable")

// fakeInfo implements os.FileInfo for fake directory entries.
type fakeInfo struct {
	name string
	size int64
	mode os.FileMode
	dir  bool
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() os.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return time.Unix(1700000000, 0) }
func (f fakeInfo) IsDir() bool        { return f.dir }
func (f fakeInfo) Sys() any           { return nil }

// fakeFS is a scriptable RemoteFS. Unset functions fail with
// errUnsupported, which forces the coordinator onto the fallback path.
type fakeFS struct {
	stat      func(string) (os.FileInfo, error)
	readDir   func(string) ([]os.FileInfo, error)
	openRead  func(string) (io.ReadCloser, error)
	openWrite func(string, os.FileMode) (io.WriteCloser, error)
	remove    func(string) error
	removeDir func(string) error
	rename    func(string, string) error
	mkdir     func(string) error
}

func (f *fakeFS) Stat(p string) (os.FileInfo, error) {
	if f.stat == nil {
		return nil, errUnsupported
	}
	return f.stat(p)
}

func (f *fakeFS) ReadDir(p string) ([]os.FileInfo, error) {
	if f.readDir == nil {
		return nil, errUnsupported
	}
	return f.readDir(p)
}

func (f *fakeFS) OpenRead(p string) (io.ReadCloser, error) {
	if f.openRead == nil {
		return nil, errUnsupported
	}
	return f.openRead(p)
}

func (f *fakeFS) OpenWrite(p string, mode os.FileMode) (io.WriteCloser, error) {
	if f.openWrite == nil {
		return nil, errUnsupported
	}
	return f.openWrite(p, mode)
}

func (f *fakeFS) Remove(p string) error {
	if f.remove == nil {
		return errUnsupported
	}
	return f.remove(p)
}

func (f *fakeFS) RemoveDirectory(p string) error {
	if f.removeDir == nil {
		return errUnsupported
	}
	return f.removeDir(p)
}

func (f *fakeFS) Rename(oldPath, newPath string) error {
	if f.rename == nil {
		return errUnsupported
	}
	return f.rename(oldPath, newPath)
}

func (f *fakeFS) Mkdir(p string) error {
	if f.mkdir == nil {
		return errUnsupported
	}
	return f.mkdir(p)
}

type runResult struct {
	stdout string
	stderr string
	exit   int
	err    error
}

// scriptRunner returns scripted results in order, recording every command.
// The last result repeats if more commands arrive than results.
type scriptRunner struct {
	results []runResult
	cmds    []string
}

func (r *scriptRunner) Run(cmd string) (string, string, int, error) {
	r.cmds = append(r.cmds, cmd)
	if len(r.results) == 0 {
		return "", "", 0, nil
	}
	res := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return res.stdout, res.stderr, res.exit, res.err
}

// recordSink captures emitted events.
type recordSink struct {
	mu     sync.Mutex
	events []protocol.ServerEvent
}

func (s *recordSink) Emit(ev protocol.ServerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordSink) all() []protocol.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ServerEvent(nil), s.events...)
}

// memWriteCloser records written bytes.
type memWriteCloser struct {
	bytes.Buffer
}

func (m *memWriteCloser) Close() error { return nil }
