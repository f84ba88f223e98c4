package jdfs

import (
	"context"

	"go.uber.org/zap"
)

// FindOrphans walks every directory of b and returns the file pointers
// whose content namespace holds no object. Such pointers are left behind
// when an upload and its cleanup both fail.
func (c *Connection) FindOrphans(ctx context.Context, b LogicalBucket) ([]DirectoryItem, error) {
	if err := c.setBucket(ctx, b); err != nil {
		return nil, err
	}

	var orphans []DirectoryItem
	pending := []string{RootMarker}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return orphans, err
		}
		marker := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		listing, err := c.listMarker(ctx, marker)
		if err != nil {
			return orphans, err
		}
		for _, dir := range listing.SortedDirectories() {
			pending = append(pending, dir.Marker)
		}
		for _, file := range listing.SortedFiles() {
			ok, err := c.hasContent(ctx, file.Marker)
			if err != nil {
				return orphans, err
			}
			if !ok {
				c.log.Info("orphaned pointer",
					zap.String("bucket", b.Path),
					zap.String("name", file.Name),
					zap.String("pointer", file.PointerKey))
				orphans = append(orphans, file)
			}
		}
	}
	return orphans, nil
}

func (c *Connection) hasContent(ctx context.Context, marker string) (bool, error) {
	entries, err := c.client.NewLister(ListOptions{Prefix: contentPrefix(marker), MaxKeys: 1}).Next(ctx)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}
