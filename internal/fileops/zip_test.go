package fileops_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/serhatdk/passage/internal/fileops"
	"github.com/serhatdk/passage/internal/protocol"
	"github.com/stretchr/testify/require"
)

// treeFS serves a fixed directory tree for archive tests.
type treeFS struct {
	fakeFS
	dirs       map[string][]os.FileInfo
	files      map[string]string
	unreadable map[string]bool
}

func newTreeFS() *treeFS {
	t := &treeFS{
		dirs:       make(map[string][]os.FileInfo),
		files:      make(map[string]string),
		unreadable: make(map[string]bool),
	}
	t.fakeFS.readDir = func(p string) ([]os.FileInfo, error) {
		infos, ok := t.dirs[p]
		if !ok {
			return nil, errors.New("no such directory")
		}
		return infos, nil
	}
	t.fakeFS.openRead = func(p string) (io.ReadCloser, error) {
		if t.unreadable[p] {
			return nil, errors.New("permission denied")
		}
		content, ok := t.files[p]
		if !ok {
			return nil, errors.New("no such file")
		}
		return io.NopCloser(strings.NewReader(content)), nil
	}
	return t
}

func (t *treeFS) addDir(path string, entries ...os.FileInfo) {
	t.dirs[path] = entries
}

func TestZipDownloadSkipsUnreadableFiles(t *testing.T) {
	fs := newTreeFS()
	fs.addDir("/data/project",
		fakeInfo{name: "a.txt", size: 5, mode: 0o644},
		fakeInfo{name: "broken.txt", size: 5, mode: 0o000},
		fakeInfo{name: "sub", dir: true, mode: os.ModeDir | 0o755},
	)
	fs.addDir("/data/project/sub",
		fakeInfo{name: "b.txt", size: 6, mode: 0o644},
	)
	fs.files["/data/project/a.txt"] = "alpha"
	fs.files["/data/project/sub/b.txt"] = "bravo!"
	fs.unreadable["/data/project/broken.txt"] = true

	var buf bytes.Buffer
	coord := fileops.New(fs, &scriptRunner{}, protocol.Discard)
	require.NoError(t, coord.ZipDownload("/data/project", &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	got := make(map[string]string)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			got[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		got[f.Name] = string(data)
	}

	// Exactly the two readable files, under paths relative to the root's
	// base name; the unreadable one is skipped, not fatal.
	require.Equal(t, "alpha", got["project/a.txt"])
	require.Equal(t, "bravo!", got["project/sub/b.txt"])
	require.NotContains(t, got, "project/broken.txt")
	require.Contains(t, got, "project/sub/")
}

func TestZipDownloadFallsBackToRemoteArchive(t *testing.T) {
	fs := newTreeFS() // no dirs registered: root listing fails
	fs.files["/tmp/archive.zip"] = "PKx-fake-zip-bytes"
	// Any /tmp/passage-*.zip read maps onto the fake archive.
	base := fs.fakeFS.openRead
	fs.fakeFS.openRead = func(p string) (io.ReadCloser, error) {
		if strings.HasPrefix(p, "/tmp/passage-") && strings.HasSuffix(p, ".zip") {
			return io.NopCloser(strings.NewReader(fs.files["/tmp/archive.zip"])), nil
		}
		return base(p)
	}

	run := &scriptRunner{results: []runResult{{exit: 0}}}
	var buf bytes.Buffer
	coord := fileops.New(fs, run, protocol.Discard)
	require.NoError(t, coord.ZipDownload("/data/project", &buf))

	require.Equal(t, "PKx-fake-zip-bytes", buf.String())
	require.GreaterOrEqual(t, len(run.cmds), 1)
	require.Contains(t, run.cmds[0], `cd "/data" && zip -r "/tmp/passage-`)
	// Temp archive cleanup follows the stream.
	last := run.cmds[len(run.cmds)-1]
	require.Contains(t, last, "rm -f ")
}

func TestZipDownloadFallbackBothTiersFail(t *testing.T) {
	fs := newTreeFS()
	run := &scriptRunner{results: []runResult{{exit: 1, stderr: "zip: not found\n"}}}

	var buf bytes.Buffer
	coord := fileops.New(fs, run, protocol.Discard)
	err := coord.ZipDownload("/data/project", &buf)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no such directory")
	require.Contains(t, err.Error(), "zip: not found")

	// Even a failed zip run cleans its temp path up.
	require.Contains(t, run.cmds[len(run.cmds)-1], "rm -f ")
}
