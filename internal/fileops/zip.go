package fileops

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ZipDownload streams an archive of the remote directory tree directly into
// w, one entry per readable file, with paths relative to the chosen root.
// A file that cannot be read is logged and skipped; one bad file must not
// block downloading the rest of the tree.
//
// If the recursive traversal cannot even list the root, a shell fallback
// builds the archive in a remote temp file, which is then streamed back and
// removed.
func (c *Coordinator) ZipDownload(root string, w io.Writer) error {
	base := baseName(root)

	if _, err := c.fs.ReadDir(root); err != nil {
		return c.zipDownloadFallback(root, w, err)
	}

	zw := zip.NewWriter(w)
	c.appendTree(zw, root, base)
	return zw.Close()
}

// appendTree recursively appends the directory's entries under prefix.
func (c *Coordinator) appendTree(zw *zip.Writer, dir, prefix string) {
	infos, err := c.fs.ReadDir(dir)
	if err != nil {
		logSkip(dir, err)
		return
	}

	for _, fi := range infos {
		full := path.Join(dir, fi.Name())
		rel := path.Join(prefix, fi.Name())

		if fi.IsDir() {
			header := &zip.FileHeader{
				Name:   rel + "/",
				Method: zip.Store,
			}
			header.Modified = fi.ModTime()
			zw.CreateHeader(header)
			c.appendTree(zw, full, rel)
			continue
		}

		src, err := c.fs.OpenRead(full)
		if err != nil {
			logSkip(full, err)
			continue
		}

		header := &zip.FileHeader{
			Name:   rel,
			Method: zip.Deflate,
		}
		header.Modified = fi.ModTime()

		dst, err := zw.CreateHeader(header)
		if err != nil {
			src.Close()
			logSkip(full, err)
			continue
		}
		if _, err := io.Copy(dst, src); err != nil {
			logSkip(full, err)
		}
		src.Close()
	}
}

// zipDownloadFallback builds the archive on the remote host with the shell
// zip command, streams the temp file back and cleans it up.
func (c *Coordinator) zipDownloadFallback(root string, w io.Writer, structuredErr error) error {
	parent := path.Dir(strings.TrimRight(root, "/"))
	tmp := path.Join("/tmp", fmt.Sprintf("passage-%d.zip", time.Now().UnixNano()))

	cmd := fmt.Sprintf(`cd %s && zip -r %s %s || echo "%s"`,
		Quote(parent), Quote(tmp), Quote(baseName(root)), sentinelZip)
	res := c.fallback(cmd, sentinelZip)
	// A failed zip run can still leave a partial temp archive behind.
	defer c.run.Run(fmt.Sprintf(`rm -f %s`, Quote(tmp)))
	if res.failed() {
		return fmt.Errorf("archive failed: %v (fallback: %s)", structuredErr, res.diagnostic())
	}

	src, err := c.fs.OpenRead(tmp)
	if err != nil {
		return fmt.Errorf("archive failed: %v (fallback archive unreadable: %w)", structuredErr, err)
	}
	defer src.Close()

	_, err = io.Copy(w, src)
	return err
}
