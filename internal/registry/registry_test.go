package registry_test

import (
	"sync"
	"testing"

	"github.com/serhatdk/passage/internal/registry"
	"github.com/serhatdk/passage/internal/sshx"
	"github.com/stretchr/testify/require"
)

type fakeCloser struct {
	mu     sync.Mutex
	closed int
}

func (f *fakeCloser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeCloser) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeFS satisfies sshx.RemoteFS for registry tests; no call is ever made.
type fakeFS struct {
	sshx.RemoteFS
	fakeCloser
}

func TestShellReplacementClosesPrior(t *testing.T) {
	reg := registry.New()

	first := &fakeCloser{}
	second := &fakeCloser{}

	reg.SetShell("s1", first)
	require.True(t, reg.HasShell("s1"))

	reg.SetShell("s1", second)
	require.Equal(t, 1, first.closeCount(), "replaced shell must be closed, not leaked")
	require.Equal(t, 0, second.closeCount())
	require.True(t, reg.HasShell("s1"))
}

func TestFSReplacementClosesPrior(t *testing.T) {
	reg := registry.New()

	first := &fakeFS{}
	second := &fakeFS{}

	reg.SetFS("s1", first, first)
	reg.SetFS("s1", second, second)

	require.Equal(t, 1, first.closeCount())
	require.Equal(t, 0, second.closeCount())

	fs, ok := reg.FS("s1")
	require.True(t, ok)
	require.Same(t, second, fs.(*fakeFS))
}

func TestCloseIsIdempotent(t *testing.T) {
	reg := registry.New()

	shell := &fakeCloser{}
	fs := &fakeFS{}
	reg.SetShell("s1", shell)
	reg.SetFS("s1", fs, fs)
	require.Equal(t, 1, reg.Len())

	reg.Close("s1")
	require.Equal(t, 0, reg.Len())
	require.False(t, reg.Active("s1"))
	require.Equal(t, 1, shell.closeCount())
	require.Equal(t, 1, fs.closeCount())

	// Second teardown: no error, no double close, still no entry.
	reg.Close("s1")
	require.Equal(t, 0, reg.Len())
	require.Equal(t, 1, shell.closeCount())
	require.Equal(t, 1, fs.closeCount())
}

func TestCloseUnknownSessionIsSafe(t *testing.T) {
	reg := registry.New()
	reg.Close("never-registered")
	require.Equal(t, 0, reg.Len())
}

func TestPerSessionIsolation(t *testing.T) {
	reg := registry.New()

	a := &fakeCloser{}
	b := &fakeCloser{}
	reg.SetShell("a", a)
	reg.SetShell("b", b)

	reg.Close("a")
	require.Equal(t, 1, a.closeCount())
	require.Equal(t, 0, b.closeCount(), "handles are never shared across sessions")
	require.True(t, reg.HasShell("b"))
	require.False(t, reg.HasShell("a"))
}

func TestClearShellDetachesWithoutClosing(t *testing.T) {
	reg := registry.New()

	shell := &fakeCloser{}
	reg.SetShell("s1", shell)

	reg.ClearShell("s1", shell)
	require.False(t, reg.HasShell("s1"))
	require.Equal(t, 0, shell.closeCount())

	// Teardown after detach must not touch the detached handle again.
	reg.Close("s1")
	require.Equal(t, 0, shell.closeCount())
}

func TestClearShellIgnoresStaleHandle(t *testing.T) {
	reg := registry.New()

	old := &fakeCloser{}
	reg.SetShell("s1", old)

	current := &fakeCloser{}
	reg.SetShell("s1", current)
	require.Equal(t, 1, old.closeCount())

	// A late close callback from the replaced stream must not detach the
	// replacement.
	reg.ClearShell("s1", old)
	require.True(t, reg.HasShell("s1"))

	reg.ClearShell("s1", current)
	require.False(t, reg.HasShell("s1"))
}

func TestAtMostOneHandlePerKind(t *testing.T) {
	reg := registry.New()

	// Churn through replacements; at every instant the registry holds at
	// most one live shell and one live fs per session.
	var shells []*fakeCloser
	var fss []*fakeFS
	for i := 0; i < 5; i++ {
		sh := &fakeCloser{}
		fs := &fakeFS{}
		shells = append(shells, sh)
		fss = append(fss, fs)
		reg.SetShell("s1", sh)
		reg.SetFS("s1", fs, fs)

		for j := 0; j < i; j++ {
			require.Equal(t, 1, shells[j].closeCount())
			require.Equal(t, 1, fss[j].closeCount())
		}
		require.Equal(t, 0, sh.closeCount())
		require.Equal(t, 0, fs.closeCount())
	}
	require.Equal(t, 1, reg.Len())
}

func TestCloseAll(t *testing.T) {
	reg := registry.New()

	a := &fakeCloser{}
	b := &fakeCloser{}
	reg.SetShell("a", a)
	reg.SetShell("b", b)

	reg.CloseAll()
	require.Equal(t, 0, reg.Len())
	require.Equal(t, 1, a.closeCount())
	require.Equal(t, 1, b.closeCount())
}
