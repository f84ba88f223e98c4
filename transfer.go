package jdfs

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/absfs/absfs"
)

// Upload copies srcPath of src into the bucket at dstPath, streaming the
// content without buffering it. It returns the number of bytes stored.
func (c *Connection) Upload(ctx context.Context, b LogicalBucket, dstPath string, src absfs.FileSystem, srcPath string) (int64, error) {
	info, err := src.Stat(srcPath)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, &os.PathError{Op: "upload", Path: srcPath, Err: ErrNotAFile}
	}

	f, err := src.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := c.WriteFile(ctx, b, dstPath, f, info.Size()); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Download copies the file at srcPath in the bucket to dstPath of dst,
// creating or truncating it.
func (c *Connection) Download(ctx context.Context, b LogicalBucket, srcPath string, dst absfs.FileSystem, dstPath string) (n int64, err error) {
	rc, err := c.ReadFile(ctx, b, srcPath)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	f, err := dst.Create(dstPath)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	n, err = io.Copy(f, rc)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", srcPath, err)
	}
	return n, nil
}
