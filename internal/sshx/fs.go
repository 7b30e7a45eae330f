package sshx

import (
	"io"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// RemoteFS is the structured file capability of one session. The file
// operation coordinator treats it as opaque: any call may fail and the
// coordinator falls back to an equivalent shell command.
type RemoteFS interface {
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
	OpenRead(path string) (io.ReadCloser, error)
	OpenWrite(path string, mode os.FileMode) (io.WriteCloser, error)
	Remove(path string) error
	RemoveDirectory(path string) error
	Rename(oldPath, newPath string) error
	Mkdir(path string) error
}

// SFTPFS adapts *sftp.Client to RemoteFS.
type SFTPFS struct {
	client *sftp.Client
}

// NewSFTPFS opens an SFTP subsystem on the transport.
func NewSFTPFS(client *ssh.Client) (*SFTPFS, error) {
	c, err := sftp.NewClient(client)
	if err != nil {
		return nil, err
	}
	return &SFTPFS{client: c}, nil
}

func (f *SFTPFS) Stat(path string) (os.FileInfo, error)      { return f.client.Stat(path) }
func (f *SFTPFS) ReadDir(path string) ([]os.FileInfo, error) { return f.client.ReadDir(path) }
func (f *SFTPFS) Remove(path string) error                   { return f.client.Remove(path) }
func (f *SFTPFS) RemoveDirectory(path string) error          { return f.client.RemoveDirectory(path) }
func (f *SFTPFS) Rename(oldPath, newPath string) error       { return f.client.Rename(oldPath, newPath) }
func (f *SFTPFS) Mkdir(path string) error                    { return f.client.Mkdir(path) }

func (f *SFTPFS) OpenRead(path string) (io.ReadCloser, error) {
	return f.client.Open(path)
}

func (f *SFTPFS) OpenWrite(path string, mode os.FileMode) (io.WriteCloser, error) {
	file, err := f.client.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, err
	}
	if err := file.Chmod(mode); err != nil {
		file.Close()
		return nil, err
	}
	return file, nil
}

// Close shuts down the SFTP subsystem. The underlying transport stays open.
func (f *SFTPFS) Close() error { return f.client.Close() }
