package jdfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/absfs/absfs"
)

// FileSystem implements absfs.FileSystem over one advanced bucket. Files are
// buffered in memory while open and written back on Close or Sync.
//
// Directory removal, renames and permission changes are not supported by the
// bucket layout and return errors.ErrUnsupported.
type FileSystem struct {
	conn   *Connection
	bucket LogicalBucket
	ctx    context.Context
	cwd    string
}

var _ absfs.FileSystem = (*FileSystem)(nil)

// NewFileSystem returns a filesystem view of bucket. ctx bounds every store
// request made through it.
func NewFileSystem(ctx context.Context, conn *Connection, bucket LogicalBucket) (*FileSystem, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if err := conn.setBucket(ctx, bucket); err != nil {
		return nil, err
	}
	return &FileSystem{conn: conn, bucket: bucket, ctx: ctx, cwd: "/"}, nil
}

// Bucket returns the bucket the filesystem addresses
func (fs *FileSystem) Bucket() LogicalBucket {
	return fs.bucket
}

// abs resolves name against the working directory
func (fs *FileSystem) abs(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if !strings.HasPrefix(name, "/") {
		name = path.Join(fs.cwd, name)
	}
	return path.Clean("/" + name)
}

func (fs *FileSystem) stat(name string) (*DirectoryItem, error) {
	item, err := fs.conn.Stat(fs.ctx, fs.bucket, name)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Separator returns '/'
func (fs *FileSystem) Separator() uint8 {
	return '/'
}

// ListSeparator returns ':'
func (fs *FileSystem) ListSeparator() uint8 {
	return ':'
}

// Chdir changes the current working directory
func (fs *FileSystem) Chdir(dir string) error {
	p := fs.abs(dir)
	item, err := fs.stat(p)
	if err != nil {
		return err
	}
	if !item.IsDirectory {
		return &os.PathError{Op: "chdir", Path: p, Err: ErrNotADirectory}
	}
	fs.cwd = p
	return nil
}

// Getwd returns the current working directory
func (fs *FileSystem) Getwd() (string, error) {
	return fs.cwd, nil
}

// TempDir returns "/tmp"; it is not created
func (fs *FileSystem) TempDir() string {
	return "/tmp"
}

// Open opens a file or directory for reading
func (fs *FileSystem) Open(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// Create creates or truncates a file for writing
func (fs *FileSystem) Create(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

// OpenFile opens name with the specified flags. perm is ignored.
func (fs *FileSystem) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	p := fs.abs(name)
	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0

	item, err := fs.stat(p)
	switch {
	case errors.Is(err, ErrNotFound):
		if flag&os.O_CREATE == 0 {
			return nil, &os.PathError{Op: "open", Path: p, Err: os.ErrNotExist}
		}
		return newBucketFile(fs, p, nil, flag, nil), nil
	case err != nil:
		return nil, err
	}

	if flag&(os.O_CREATE|os.O_EXCL) == os.O_CREATE|os.O_EXCL {
		return nil, &os.PathError{Op: "open", Path: p, Err: os.ErrExist}
	}
	if item.IsDirectory {
		if writable {
			return nil, &os.PathError{Op: "open", Path: p, Err: ErrNotAFile}
		}
		return newBucketFile(fs, p, item, flag, nil), nil
	}

	var data []byte
	if flag&os.O_TRUNC == 0 || !writable {
		if data, err = fs.readAll(p); err != nil {
			return nil, err
		}
	}
	return newBucketFile(fs, p, item, flag, data), nil
}

func (fs *FileSystem) readAll(p string) ([]byte, error) {
	rc, err := fs.conn.ReadFile(fs.ctx, fs.bucket, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// replace writes data as a new file at p and then removes old, if any.
func (fs *FileSystem) replace(p string, old *DirectoryItem, data []byte) (*DirectoryItem, error) {
	if err := fs.conn.WriteFile(fs.ctx, fs.bucket, p, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, err
	}
	if old != nil {
		if err := fs.conn.DeleteItem(fs.ctx, fs.bucket, *old); err != nil {
			return nil, err
		}
	}
	return fs.stat(p)
}

// Mkdir creates a directory. perm is ignored.
func (fs *FileSystem) Mkdir(name string, perm os.FileMode) error {
	_, err := fs.conn.Mkdir(fs.ctx, fs.bucket, fs.abs(name))
	return err
}

// MkdirAll creates a directory and all missing parents. perm is ignored.
func (fs *FileSystem) MkdirAll(name string, perm os.FileMode) error {
	return fs.conn.MkdirAll(fs.ctx, fs.bucket, fs.abs(name))
}

// Remove removes a file
func (fs *FileSystem) Remove(name string) error {
	p := fs.abs(name)
	item, err := fs.stat(p)
	if err != nil {
		return err
	}
	if item.IsDirectory {
		return &os.PathError{Op: "remove", Path: p, Err: errors.ErrUnsupported}
	}
	return fs.conn.DeleteItem(fs.ctx, fs.bucket, *item)
}

// RemoveAll removes a file. A missing path is not an error.
func (fs *FileSystem) RemoveAll(name string) error {
	p := fs.abs(name)
	item, err := fs.stat(p)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if item.IsDirectory {
		return &os.PathError{Op: "removeall", Path: p, Err: errors.ErrUnsupported}
	}
	return fs.conn.DeleteItem(fs.ctx, fs.bucket, *item)
}

// Rename is not supported
func (fs *FileSystem) Rename(oldpath, newpath string) error {
	return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errors.ErrUnsupported}
}

// Stat returns file information
func (fs *FileSystem) Stat(name string) (os.FileInfo, error) {
	p := fs.abs(name)
	item, err := fs.stat(p)
	if err != nil {
		return nil, err
	}
	return newItemInfo(*item), nil
}

// Chmod is not supported
func (fs *FileSystem) Chmod(name string, mode os.FileMode) error {
	return &os.PathError{Op: "chmod", Path: fs.abs(name), Err: errors.ErrUnsupported}
}

// Chtimes is not supported
func (fs *FileSystem) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return &os.PathError{Op: "chtimes", Path: fs.abs(name), Err: errors.ErrUnsupported}
}

// Chown is not supported
func (fs *FileSystem) Chown(name string, uid, gid int) error {
	return &os.PathError{Op: "chown", Path: fs.abs(name), Err: errors.ErrUnsupported}
}

// Truncate rewrites a file at the given size
func (fs *FileSystem) Truncate(name string, size int64) error {
	f, err := fs.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// itemInfo adapts a DirectoryItem to os.FileInfo
type itemInfo struct {
	item DirectoryItem
}

func newItemInfo(item DirectoryItem) *itemInfo {
	return &itemInfo{item: item}
}

func (i *itemInfo) Name() string {
	if i.item.Name == "" {
		return "/"
	}
	return i.item.Name
}

func (i *itemInfo) Size() int64 { return i.item.Size }

func (i *itemInfo) Mode() os.FileMode {
	if i.item.IsDirectory {
		return os.ModeDir | 0755
	}
	return 0644
}

func (i *itemInfo) ModTime() time.Time { return time.Time{} }
func (i *itemInfo) IsDir() bool        { return i.item.IsDirectory }
func (i *itemInfo) Sys() any           { return i.item }
