package jdfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
)

// bucketFile buffers a file's plaintext while it is open. Directories are
// opened as bucketFile too, for Readdir.
type bucketFile struct {
	fs      *FileSystem
	name    string
	item    *DirectoryItem // nil until the file exists in the bucket
	flags   int
	data    []byte
	dirty   bool
	offset  int64
	closed  bool
	entries []os.FileInfo // directory entries not yet returned
	listed  bool
}

func newBucketFile(fs *FileSystem, name string, item *DirectoryItem, flags int, data []byte) *bucketFile {
	f := &bucketFile{
		fs:    fs,
		name:  name,
		item:  item,
		flags: flags,
		data:  data,
		// New and truncated files are written back even when left empty.
		dirty: item == nil || (flags&os.O_TRUNC != 0 && flags&(os.O_WRONLY|os.O_RDWR) != 0),
	}
	if flags&os.O_APPEND != 0 {
		f.offset = int64(len(data))
	}
	return f
}

func (f *bucketFile) isDir() bool {
	return f.item != nil && f.item.IsDirectory
}

func (f *bucketFile) checkOpen(op string) error {
	if f.closed {
		return &os.PathError{Op: op, Path: f.name, Err: os.ErrClosed}
	}
	return nil
}

func (f *bucketFile) checkWritable(op string) error {
	if err := f.checkOpen(op); err != nil {
		return err
	}
	if f.flags&(os.O_WRONLY|os.O_RDWR) == 0 {
		return &os.PathError{Op: op, Path: f.name, Err: os.ErrPermission}
	}
	return nil
}

// flush writes the buffer back as a new file and removes the previous one
func (f *bucketFile) flush() error {
	if !f.dirty {
		return nil
	}
	item, err := f.fs.replace(f.name, f.item, f.data)
	if err != nil {
		return err
	}
	f.item = item
	f.dirty = false
	return nil
}

// Name returns the absolute path the file was opened with
func (f *bucketFile) Name() string {
	return f.name
}

// Read reads from the buffered content
func (f *bucketFile) Read(p []byte) (n int, err error) {
	if err := f.checkOpen("read"); err != nil {
		return 0, err
	}
	if f.isDir() {
		return 0, &os.PathError{Op: "read", Path: f.name, Err: ErrNotAFile}
	}
	if f.offset >= int64(len(f.data)) {
		return 0, io.EOF
	}

	n = copy(p, f.data[f.offset:])
	f.offset += int64(n)
	return n, nil
}

// Write writes to the buffer; content reaches the bucket on Close or Sync
func (f *bucketFile) Write(p []byte) (n int, err error) {
	if err := f.checkWritable("write"); err != nil {
		return 0, err
	}
	if f.flags&os.O_APPEND != 0 {
		f.offset = int64(len(f.data))
	}
	n, err = f.WriteAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// WriteString writes a string to the file
func (f *bucketFile) WriteString(s string) (n int, err error) {
	return f.Write([]byte(s))
}

// Seek sets the offset for the next Read or Write
func (f *bucketFile) Seek(offset int64, whence int) (int64, error) {
	if err := f.checkOpen("seek"); err != nil {
		return 0, err
	}
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.offset + offset
	case io.SeekEnd:
		next = int64(len(f.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if next < 0 {
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: errors.New("negative position")}
	}
	f.offset = next
	return next, nil
}

// Close flushes pending writes
func (f *bucketFile) Close() error {
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	return f.flush()
}

// Sync flushes pending writes
func (f *bucketFile) Sync() error {
	if err := f.checkOpen("sync"); err != nil {
		return err
	}
	return f.flush()
}

// Stat returns the buffered file's information
func (f *bucketFile) Stat() (os.FileInfo, error) {
	if err := f.checkOpen("stat"); err != nil {
		return nil, err
	}
	if f.item == nil {
		return newItemInfo(DirectoryItem{Name: path.Base(f.name), Size: int64(len(f.data))}), nil
	}
	item := *f.item
	if !item.IsDirectory {
		item.Size = int64(len(f.data))
	}
	return newItemInfo(item), nil
}

// Readdir returns up to n entries of a directory, or all remaining entries
// when n <= 0.
func (f *bucketFile) Readdir(n int) ([]os.FileInfo, error) {
	if err := f.checkOpen("readdir"); err != nil {
		return nil, err
	}
	if !f.isDir() {
		return nil, &os.PathError{Op: "readdir", Path: f.name, Err: ErrNotADirectory}
	}
	if !f.listed {
		listing, err := f.fs.conn.List(f.fs.ctx, f.fs.bucket, f.name)
		if err != nil {
			return nil, err
		}
		for _, item := range listing.SortedDirectories() {
			f.entries = append(f.entries, newItemInfo(item))
		}
		for _, item := range listing.SortedFiles() {
			f.entries = append(f.entries, newItemInfo(item))
		}
		f.listed = true
	}

	if n <= 0 {
		out := f.entries
		f.entries = nil
		return out, nil
	}
	if len(f.entries) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(f.entries))
	out := f.entries[:n]
	f.entries = f.entries[n:]
	return out, nil
}

// Readdirnames returns directory entry names
func (f *bucketFile) Readdirnames(n int) ([]string, error) {
	infos, err := f.Readdir(n)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}

// ReadAt reads from a specific offset in the buffered content
func (f *bucketFile) ReadAt(b []byte, off int64) (n int, err error) {
	if err := f.checkOpen("read"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, &os.PathError{Op: "read", Path: f.name, Err: errors.New("negative offset")}
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}

	n = copy(b, f.data[off:])
	if n < len(b) {
		err = io.EOF
	}
	return n, err
}

// WriteAt writes at a specific offset, growing the buffer as needed
func (f *bucketFile) WriteAt(b []byte, off int64) (n int, err error) {
	if err := f.checkWritable("write"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, &os.PathError{Op: "write", Path: f.name, Err: errors.New("negative offset")}
	}

	if end := off + int64(len(b)); end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	n = copy(f.data[off:], b)
	f.dirty = true
	return n, nil
}

// Truncate changes the size of the buffered content
func (f *bucketFile) Truncate(size int64) error {
	if err := f.checkWritable("truncate"); err != nil {
		return err
	}
	if size < 0 {
		return &os.PathError{Op: "truncate", Path: f.name, Err: errors.New("negative size")}
	}
	if size > int64(len(f.data)) {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	} else {
		f.data = f.data[:size]
	}
	f.dirty = true
	return nil
}
