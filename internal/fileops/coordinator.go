// Package fileops coordinates remote file operations for one session.
// Every mutating operation is attempted through the structured SFTP
// capability first; on failure an equivalent shell command runs once as a
// fallback. The client sees one unified result either way.
package fileops

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/serhatdk/passage/internal/protocol"
	"github.com/serhatdk/passage/internal/sshx"
)

// Per-operation sentinel tokens. Appended to the fallback command's failure
// branch so a non-zero exit is detectable from output alone on remotes
// whose shells do not report exit codes reliably.
const (
	sentinelDelete = "RM_FAILED"
	sentinelRename = "MV_FAILED"
	sentinelMkdir  = "MKDIR_FAILED"
	sentinelSave   = "SAVE_FAILED"
	sentinelRead   = "READ_FAILED"
	sentinelUpload = "UPLOAD_FAILED"
	sentinelList   = "LS_FAILED"
	sentinelZip    = "ZIP_FAILED"
)

const defaultFileMode = os.FileMode(0o644)

// Coordinator runs file operations against one session's registered
// capabilities and reports results on the session's event sink.
type Coordinator struct {
	fs   sshx.RemoteFS
	run  sshx.Runner
	sink protocol.EventSink
}

func New(fs sshx.RemoteFS, run sshx.Runner, sink protocol.EventSink) *Coordinator {
	return &Coordinator{fs: fs, run: run, sink: sink}
}

// cmdResult is the outcome of one fallback shell command.
type cmdResult struct {
	stdout   string
	stderr   string
	exitCode int
	runErr   error
	sentinel string
}

// failed applies the merged failure rule: a non-zero exit OR the sentinel
// token in stdout is a failure, either signal alone sufficing. The exit
// code is primary; the sentinel is checked against stdout only.
func (r cmdResult) failed() bool {
	if r.runErr != nil || r.exitCode != 0 {
		return true
	}
	return strings.Contains(r.stdout, r.sentinel)
}

// diagnostic merges the command's stderr with any stream-level error into
// one human-readable string.
func (r cmdResult) diagnostic() string {
	d := strings.TrimSpace(r.stderr)
	if r.runErr != nil {
		if d != "" {
			d += "; "
		}
		d += r.runErr.Error()
	}
	if d == "" {
		d = fmt.Sprintf("command exited with status %d", r.exitCode)
	}
	return d
}

// fallback executes one synthesized shell command, collecting stdout and
// stderr in full. Exactly one fallback attempt runs per request.
func (c *Coordinator) fallback(cmd, sentinel string) cmdResult {
	stdout, stderr, exit, err := c.run.Run(cmd)
	return cmdResult{stdout: stdout, stderr: stderr, exitCode: exit, runErr: err, sentinel: sentinel}
}

// emitCombined reports a terminal fallback failure with both the structured
// call's error and the shell diagnostics, so the operator can see which
// layer failed.
func (c *Coordinator) emitCombined(op string, structuredErr error, res cmdResult) {
	c.sink.Emit(protocol.Errorf("%s failed: %v (fallback: %s)", op, structuredErr, res.diagnostic()))
}

// Delete removes a file or directory.
func (c *Coordinator) Delete(p string, isDir bool) {
	var structuredErr error
	if isDir {
		structuredErr = c.fs.RemoveDirectory(p)
	} else {
		structuredErr = c.fs.Remove(p)
	}
	if structuredErr == nil {
		c.sink.Emit(protocol.ServerEvent{Type: protocol.EventDeleteDone, Path: p, Message: "Deleted " + p})
		return
	}

	flag := "-f"
	if isDir {
		flag = "-rf"
	}
	res := c.fallback(fmt.Sprintf(`rm %s %s || echo "%s"`, flag, Quote(p), sentinelDelete), sentinelDelete)
	if res.failed() {
		c.emitCombined("Delete", structuredErr, res)
		return
	}
	c.sink.Emit(protocol.ServerEvent{Type: protocol.EventDeleteDone, Path: p, Message: "Deleted " + p})
}

// Rename moves a file or directory to a new path.
func (c *Coordinator) Rename(oldPath, newPath string) {
	structuredErr := c.fs.Rename(oldPath, newPath)
	if structuredErr == nil {
		c.sink.Emit(protocol.ServerEvent{Type: protocol.EventRenameDone, Path: oldPath, NewPath: newPath, Message: "Renamed"})
		return
	}

	res := c.fallback(fmt.Sprintf(`mv %s %s || echo "%s"`, Quote(oldPath), Quote(newPath), sentinelRename), sentinelRename)
	if res.failed() {
		c.emitCombined("Rename", structuredErr, res)
		return
	}
	c.sink.Emit(protocol.ServerEvent{Type: protocol.EventRenameDone, Path: oldPath, NewPath: newPath, Message: "Renamed"})
}

// Mkdir creates a directory.
func (c *Coordinator) Mkdir(p string) {
	structuredErr := c.fs.Mkdir(p)
	if structuredErr == nil {
		c.sink.Emit(protocol.ServerEvent{Type: protocol.EventFolderCreated, Path: p, Message: "Folder created"})
		return
	}

	res := c.fallback(fmt.Sprintf(`mkdir -p %s || echo "%s"`, Quote(p), sentinelMkdir), sentinelMkdir)
	if res.failed() {
		c.emitCombined("Create folder", structuredErr, res)
		return
	}
	c.sink.Emit(protocol.ServerEvent{Type: protocol.EventFolderCreated, Path: p, Message: "Folder created"})
}

// ReadContent fetches file content through the two-tier ladder and returns
// it to the caller. A returned error already carries both the structured
// error and the fallback diagnostics.
func (c *Coordinator) ReadContent(p string) (string, error) {
	content, structuredErr := c.readStructured(p)
	if structuredErr == nil {
		return content, nil
	}

	res := c.fallback(fmt.Sprintf(`cat %s || echo "%s"`, Quote(p), sentinelRead), sentinelRead)
	if res.failed() {
		return "", fmt.Errorf("read failed: %v (fallback: %s)", structuredErr, res.diagnostic())
	}
	return res.stdout, nil
}

// Read fetches file content for viewing or editing and reports it on the
// event channel.
func (c *Coordinator) Read(p string) {
	content, err := c.ReadContent(p)
	if err != nil {
		c.sink.Emit(protocol.ServerEvent{Type: protocol.EventError, Message: err.Error()})
		return
	}
	c.sink.Emit(protocol.ServerEvent{Type: protocol.EventFileContent, Path: p, Data: content})
}

func (c *Coordinator) readStructured(p string) (string, error) {
	f, err := c.fs.OpenRead(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SaveContent writes file content through the two-tier ladder, preserving
// the existing file's permission bits when it can stat them.
func (c *Coordinator) SaveContent(p, content string) error {
	mode := defaultFileMode
	if fi, err := c.fs.Stat(p); err == nil {
		mode = fi.Mode().Perm()
	}

	structuredErr := c.writeStructured(p, []byte(content), mode)
	if structuredErr == nil {
		return nil
	}

	// Fallback writes to a unique temp path in the target directory, then
	// moves it over the destination, so a partial write never corrupts the
	// original file.
	//
	// Every heredoc line ends with a newline, the closing one included.
	// Strip one trailing newline from the content so newline-terminated
	// text round-trips byte for byte; content without a final newline
	// gains one on this path.
	body := strings.TrimSuffix(content, "\n")
	tmp := fmt.Sprintf("%s.tmp-%d", p, time.Now().UnixNano())
	marker := fmt.Sprintf("PASSAGE_EOF_%d", time.Now().UnixNano())
	cmd := fmt.Sprintf("cat > %s <<'%s'\n%s\n%s\nmv %s %s || echo \"%s\"",
		Quote(tmp), marker, body, marker, Quote(tmp), Quote(p), sentinelSave)

	res := c.fallback(cmd, sentinelSave)
	if res.failed() {
		return fmt.Errorf("save failed: %v (fallback: %s)", structuredErr, res.diagnostic())
	}
	return nil
}

// Save writes file content and reports the result on the event channel.
func (c *Coordinator) Save(p, content string) {
	if err := c.SaveContent(p, content); err != nil {
		c.sink.Emit(protocol.ServerEvent{Type: protocol.EventError, Message: err.Error()})
		return
	}
	c.sink.Emit(protocol.ServerEvent{Type: protocol.EventFileSaved, Path: p, Message: "Saved " + p})
}

func (c *Coordinator) writeStructured(p string, data []byte, mode os.FileMode) error {
	w, err := c.fs.OpenWrite(p, mode)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Upload writes raw uploaded bytes to the target path.
func (c *Coordinator) Upload(p string, data []byte) {
	structuredErr := c.writeStructured(p, data, defaultFileMode)
	if structuredErr == nil {
		c.sink.Emit(protocol.ServerEvent{Type: protocol.EventUploadDone, Path: p, Message: "Uploaded " + p})
		return
	}

	// base64 keeps arbitrary bytes shell-safe inside the fallback command.
	b64 := base64.StdEncoding.EncodeToString(data)
	cmd := fmt.Sprintf(`echo "%s" | base64 -d > %s || echo "%s"`, b64, Quote(p), sentinelUpload)
	res := c.fallback(cmd, sentinelUpload)
	if res.failed() {
		c.emitCombined("Upload", structuredErr, res)
		return
	}
	c.sink.Emit(protocol.ServerEvent{Type: protocol.EventUploadDone, Path: p, Message: "Uploaded " + p})
}

// List emits a directory listing.
func (c *Coordinator) List(p string) {
	infos, structuredErr := c.fs.ReadDir(p)
	if structuredErr == nil {
		entries := make([]protocol.DirEntry, 0, len(infos))
		for _, fi := range infos {
			entries = append(entries, protocol.DirEntry{
				Name:    fi.Name(),
				Size:    fi.Size(),
				Mode:    fi.Mode().String(),
				ModTime: fi.ModTime().Unix(),
				IsDir:   fi.IsDir(),
			})
		}
		c.sink.Emit(protocol.ServerEvent{Type: protocol.EventDirList, Path: p, Entries: entries})
		return
	}

	res := c.fallback(fmt.Sprintf(`ls -la %s || echo "%s"`, Quote(p), sentinelList), sentinelList)
	if res.failed() {
		c.emitCombined("List", structuredErr, res)
		return
	}
	c.sink.Emit(protocol.ServerEvent{Type: protocol.EventDirList, Path: p, Entries: parseListing(res.stdout)})
}

// baseName is path.Base that tolerates trailing slashes.
func baseName(p string) string {
	return path.Base(strings.TrimRight(p, "/"))
}

// archiveName derives a collision-free archive file name from the source
// directory's base name.
func archiveName(p string) string {
	return fmt.Sprintf("%s-%s.zip", baseName(p), time.Now().Format("20060102-150405"))
}

// ZipRemote creates an archive of the target directory next to it on the
// remote host. If zipping in place fails, it retries through a temp
// location and copies the result back.
func (c *Coordinator) ZipRemote(p string) {
	c.sink.Emit(protocol.ServerEvent{Type: protocol.EventZipStart, Path: p, Message: "Archiving " + p})

	parent := path.Dir(strings.TrimRight(p, "/"))
	name := archiveName(p)
	target := path.Join(parent, name)

	cmd := fmt.Sprintf(`cd %s && zip -r %s %s || echo "%s"`,
		Quote(parent), Quote(name), Quote(baseName(p)), sentinelZip)
	res := c.fallback(cmd, sentinelZip)
	if !res.failed() {
		c.sink.Emit(protocol.ServerEvent{Type: protocol.EventZipDone, Path: p, Archive: target, Message: "Archive created: " + target})
		return
	}

	// Retry through /tmp: the parent directory may not be writable during
	// the zip run even when it accepts the finished file.
	tmp := path.Join("/tmp", name)
	retryCmd := fmt.Sprintf(`cd %s && zip -r %s %s && cp %s %s || echo "%s"`,
		Quote(parent), Quote(tmp), Quote(baseName(p)), Quote(tmp), Quote(target), sentinelZip)
	retry := c.fallback(retryCmd, sentinelZip)
	// The temp archive goes away whether or not the copy-back succeeded.
	c.run.Run(fmt.Sprintf(`rm -f %s`, Quote(tmp)))
	if retry.failed() {
		c.sink.Emit(protocol.Errorf("Archive failed: %s (retry: %s)", res.diagnostic(), retry.diagnostic()))
		return
	}
	c.sink.Emit(protocol.ServerEvent{Type: protocol.EventZipDone, Path: p, Archive: target, Message: "Archive created: " + target})
}

// logSkip records one unreadable file skipped during a streamed archive.
func logSkip(p string, err error) {
	slog.Warn("Skipping unreadable file in archive", "path", p, "error", err)
}
