package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/absfs/absfs"
)

// localFS exposes the local filesystem as an absfs.FileSystem. Relative
// names resolve against the process working directory.
type localFS struct{}

var _ absfs.FileSystem = localFS{}

func (localFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	if flag&os.O_CREATE != 0 {
		if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(name, flag, perm)
}

func (localFS) Mkdir(name string, perm os.FileMode) error    { return os.Mkdir(name, perm) }
func (localFS) MkdirAll(name string, perm os.FileMode) error { return os.MkdirAll(name, perm) }
func (localFS) Remove(name string) error                     { return os.Remove(name) }
func (localFS) RemoveAll(path string) error                  { return os.RemoveAll(path) }
func (localFS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (localFS) Stat(name string) (os.FileInfo, error)        { return os.Stat(name) }
func (localFS) Chmod(name string, mode os.FileMode) error    { return os.Chmod(name, mode) }
func (localFS) Chown(name string, uid, gid int) error        { return os.Chown(name, uid, gid) }
func (localFS) Truncate(name string, size int64) error       { return os.Truncate(name, size) }
func (localFS) Separator() uint8                             { return os.PathSeparator }
func (localFS) ListSeparator() uint8                         { return os.PathListSeparator }
func (localFS) Chdir(dir string) error                       { return os.Chdir(dir) }
func (localFS) Getwd() (string, error)                       { return os.Getwd() }
func (localFS) TempDir() string                              { return os.TempDir() }

func (localFS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

func (fs localFS) Open(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs localFS) Create(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}
