package jdfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Connection maps a virtual directory tree onto advanced buckets. Nothing is
// cached between calls except the selected bucket and its key file.
//
// A Connection is not safe for concurrent use.
type Connection struct {
	cfg        Config
	client     *Client
	keys       *KeyRing
	log        *zap.Logger
	metrics    *Metrics
	classifier *Classifier

	bucket   LogicalBucket
	selected bool
	keyFile  *KeyFile
	names    FilenameCipher
}

// New creates a connection for config.
func New(config *Config) (*Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg := config.withDefaults()

	keys := NewKeyRing(cfg.PasswordFunc, cfg.Metrics)
	client, err := NewClient(cfg, keys)
	if err != nil {
		return nil, err
	}

	return &Connection{
		cfg:        cfg,
		client:     client,
		keys:       keys,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		classifier: NewClassifier(cfg.Credential.AccessKeyID),
		names:      noOpFilenameCipher{},
	}, nil
}

// Client returns the underlying store client
func (c *Connection) Client() *Client {
	return c.client
}

// AddKey caches a password for decrypting objects.
func (c *Connection) AddKey(password string) {
	c.keys.Add(password)
}

// EncryptFilenames reports whether the selected bucket encrypts names
func (c *Connection) EncryptFilenames() bool {
	return c.keyFile != nil && c.keyFile.EncryptFilenames
}

// EncryptNewFiles reports whether new content in the selected bucket is
// encrypted
func (c *Connection) EncryptNewFiles() bool {
	return c.keyFile != nil && c.keyFile.EncryptNewFiles
}

// AdvancedBucket returns the logical advanced bucket called name for the
// connection's credential.
func (c *Connection) AdvancedBucket(name string) LogicalBucket {
	return NewAdvancedBucket(c.cfg.Credential.AccessKeyID, name)
}

// setBucket selects b and loads its key file when the selection changes.
func (c *Connection) setBucket(ctx context.Context, b LogicalBucket) error {
	if b.Type != BucketAdvanced {
		return fmt.Errorf("%s: %w", b, ErrUnsupportedBucket)
	}
	if c.selected && c.bucket == b {
		return nil
	}

	c.selected = false
	c.client.SetRoute(b.S3Bucket, b.DisplayName)
	if err := c.readKeyFile(ctx); err != nil {
		return err
	}
	c.bucket = b
	c.selected = true
	return nil
}

// readKeyFile loads 0.key of the routed bucket. A missing key file means no
// encryption.
func (c *Connection) readKeyFile(ctx context.Context) error {
	c.keyFile = nil
	c.names = noOpFilenameCipher{}

	resp, err := c.client.getObject(ctx, KeyFileObject, BucketPasswordHint, false)
	if err != nil {
		if IsAbsent(err) {
			return nil
		}
		return err
	}
	defer resp.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}
	kf, err := UnmarshalKeyFile(data)
	if err != nil {
		return err
	}
	return c.useKeyFile(kf)
}

func (c *Connection) useKeyFile(kf *KeyFile) error {
	names, err := NewFilenameCipher(kf)
	if err != nil {
		return err
	}
	c.keys.Add(kf.EncryptionKey)
	c.keys.Add(kf.DecryptionKeys...)
	c.keyFile = kf
	c.names = names
	return nil
}

// BucketExists reports whether b has been created. Encrypted buckets count
// as existing even when no password is available.
func (c *Connection) BucketExists(ctx context.Context, b LogicalBucket) (bool, error) {
	exists, _, err := c.bucketExists(ctx, b)
	return exists, err
}

func (c *Connection) bucketExists(ctx context.Context, b LogicalBucket) (exists, s3Exists bool, err error) {
	s3Exists, err = c.client.S3BucketExists(ctx, b.S3Bucket)
	if err != nil || !s3Exists {
		return false, s3Exists, err
	}

	if err := c.setBucket(ctx, b); err != nil {
		if IsCryptographicError(err) || errors.Is(err, ErrKeyNotFound) {
			return true, true, nil
		}
		return false, true, err
	}

	for _, key := range []string{DirObject, KeyFileObject} {
		ok, err := c.client.ObjectExists(ctx, key)
		if err != nil {
			return false, true, err
		}
		if ok {
			return true, true, nil
		}
	}
	return false, true, nil
}

// PrepareBucket creates the per-account S3 bucket holding advanced buckets.
func (c *Connection) PrepareBucket(ctx context.Context) error {
	return c.client.CreateS3Bucket(ctx, AdvancedBucketName(c.cfg.Credential.AccessKeyID))
}

// CreateBucket creates b. With a password, a key file is written and new
// content encrypted; encryptFilenames additionally encrypts names and can
// never be changed afterwards.
func (c *Connection) CreateBucket(ctx context.Context, b LogicalBucket, password string, encryptFilenames bool) error {
	if b.Type != BucketAdvanced {
		return fmt.Errorf("%s: %w", b, ErrUnsupportedBucket)
	}
	if err := ValidateBucketName(b.DisplayName); err != nil {
		return err
	}
	if encryptFilenames && password == "" {
		return NewValidationError("encrypt_filenames", encryptFilenames, "filename encryption requires a bucket password")
	}

	exists, s3Exists, err := c.bucketExists(ctx, b)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s: %w", b.DisplayName, ErrAlreadyExists)
	}

	if !s3Exists {
		if err := c.client.CreateS3Bucket(ctx, b.S3Bucket); err != nil {
			return err
		}
		if err := c.waitForBucket(ctx, b.S3Bucket); err != nil {
			return err
		}
	}
	if err := c.setBucket(ctx, b); err != nil {
		return err
	}

	if password != "" {
		if err := c.changeBucketPassword(ctx, password, encryptFilenames); err != nil {
			return err
		}
	}
	if err := c.client.PutObject(ctx, DirObject, nil, 0, password); err != nil {
		return err
	}

	c.log.Info("bucket created",
		zap.String("bucket", b.Path),
		zap.Bool("encrypted", password != ""),
		zap.Bool("encrypt_filenames", encryptFilenames))
	return nil
}

// waitForBucket polls until a newly created S3 bucket is listed. Giving up
// is not an error.
func (c *Connection) waitForBucket(ctx context.Context, name string) error {
	for attempt := 0; attempt < c.cfg.VisibilityAttempts; attempt++ {
		ok, err := c.client.S3BucketExists(ctx, name)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.VisibilityBackoff):
		}
	}
	c.log.Warn("bucket not yet visible, continuing",
		zap.String("bucket", name),
		zap.Int("attempts", c.cfg.VisibilityAttempts))
	return nil
}

// ChangeBucketPassword re-encrypts the key file of b with newPassword. An
// empty password stores it in the clear and stops encrypting new files.
func (c *Connection) ChangeBucketPassword(ctx context.Context, b LogicalBucket, newPassword string) error {
	if err := c.setBucket(ctx, b); err != nil {
		return err
	}
	return c.changeBucketPassword(ctx, newPassword, c.EncryptFilenames())
}

func (c *Connection) changeBucketPassword(ctx context.Context, newPassword string, encryptFilenames bool) error {
	var kf *KeyFile
	var wasEncrypted bool
	resp, err := c.client.getObject(ctx, KeyFileObject, BucketPasswordHint, false)
	switch {
	case err == nil:
		wasEncrypted = resp.Encrypted
		data, rerr := io.ReadAll(resp.Body)
		resp.Close()
		if rerr != nil {
			return fmt.Errorf("failed to read key file: %w", rerr)
		}
		if kf, err = UnmarshalKeyFile(data); err != nil {
			return err
		}
		if kf.EncryptFilenames != encryptFilenames {
			return NewValidationError("encrypt_filenames", encryptFilenames, "filename encryption is fixed at bucket creation")
		}
		kf.EncryptNewFiles = newPassword != ""
	case IsAbsent(err):
		if kf, err = NewKeyFile(newPassword != "", encryptFilenames); err != nil {
			return err
		}
	default:
		return err
	}

	data, err := MarshalKeyFile(kf)
	if err != nil {
		return err
	}
	// Some stores merge user metadata on overwrite; a plaintext key file
	// must not inherit the old crypt headers.
	if wasEncrypted && newPassword == "" {
		if err := c.client.DeleteObject(ctx, KeyFileObject); err != nil {
			return err
		}
	}
	if err := c.client.PutObject(ctx, KeyFileObject, bytes.NewReader(data), int64(len(data)), newPassword); err != nil {
		return err
	}
	c.keys.Add(newPassword)
	return c.useKeyFile(kf)
}

// ListBuckets returns the logical buckets accepted by filter. Each advanced
// S3 bucket expands to the buckets stored inside it.
func (c *Connection) ListBuckets(ctx context.Context, filter BucketFilter) ([]LogicalBucket, error) {
	names, err := c.client.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}

	var out []LogicalBucket
	for _, name := range names {
		t := c.classifier.Classify(name)
		if !filter.accepts(t) {
			continue
		}
		if t != BucketAdvanced {
			out = append(out, c.classifier.Bucket(name))
			continue
		}
		subs, err := c.subBuckets(ctx, name)
		if err != nil {
			return out, err
		}
		out = append(out, subs...)
	}
	return out, nil
}

func (c *Connection) subBuckets(ctx context.Context, s3Bucket string) ([]LogicalBucket, error) {
	saved := c.client.Route()
	defer c.client.SetRoute(saved.Bucket, saved.PathPrefix)

	c.client.SetRoute(s3Bucket, "")
	entries, err := c.client.List(ctx, ListOptions{Delimiter: "/"})
	if err != nil {
		return nil, err
	}
	var out []LogicalBucket
	for _, e := range entries {
		if !e.CommonPrefix {
			continue
		}
		name := strings.TrimSuffix(e.Key, "/")
		out = append(out, LogicalBucket{
			Type:        BucketAdvanced,
			S3Bucket:    s3Bucket,
			Path:        s3Bucket + "/" + name,
			DisplayName: name,
		})
	}
	return out, nil
}

// listMarker decodes the pointers stored under parent.
func (c *Connection) listMarker(ctx context.Context, parent string) (*DirectoryListing, error) {
	listing := NewDirectoryListing()
	lister := c.client.NewLister(ListOptions{Prefix: parent + "/"})
	for e, err := range lister.All(ctx) {
		if err != nil {
			return nil, err
		}
		if e.CommonPrefix {
			continue
		}
		item, ok, err := decodePointer(parent, e.Key, c.names)
		if err != nil {
			return nil, err
		}
		if ok {
			listing.Add(item)
		}
	}
	return listing, nil
}

// resolve walks parts from the root. The item is nil for the root.
func (c *Connection) resolve(ctx context.Context, parts []string) (string, *DirectoryItem, error) {
	marker := RootMarker
	var item *DirectoryItem
	for i, name := range parts {
		listing, err := c.listMarker(ctx, marker)
		if err != nil {
			return "", nil, err
		}
		found, ok := listing.ItemFor(name)
		if !ok {
			return "", nil, ErrNotFound
		}
		if !found.IsDirectory && i < len(parts)-1 {
			return "", nil, ErrNotADirectory
		}
		item = &found
		marker = found.Marker
	}
	return marker, item, nil
}

// Resolve returns the marker and item at path. The root resolves to
// RootMarker with a nil item.
func (c *Connection) Resolve(ctx context.Context, b LogicalBucket, path string) (string, *DirectoryItem, error) {
	if err := c.setBucket(ctx, b); err != nil {
		return "", nil, err
	}
	marker, item, err := c.resolve(ctx, splitPath(path))
	if err != nil {
		return "", nil, newPathError("resolve", path, err)
	}
	return marker, item, nil
}

// Stat returns the item at path. The root is reported as a directory with
// RootMarker.
func (c *Connection) Stat(ctx context.Context, b LogicalBucket, path string) (DirectoryItem, error) {
	marker, item, err := c.Resolve(ctx, b, path)
	if err != nil {
		return DirectoryItem{}, err
	}
	if item == nil {
		return DirectoryItem{Marker: marker, IsDirectory: true}, nil
	}
	return *item, nil
}

// List returns the children of the directory at path.
func (c *Connection) List(ctx context.Context, b LogicalBucket, path string) (*DirectoryListing, error) {
	marker, item, err := c.Resolve(ctx, b, path)
	if err != nil {
		return nil, err
	}
	if item != nil && !item.IsDirectory {
		return nil, newPathError("list", path, ErrNotADirectory)
	}
	listing, err := c.listMarker(ctx, marker)
	if err != nil {
		return nil, newPathError("list", path, err)
	}
	return listing, nil
}

func (c *Connection) mkdirIn(ctx context.Context, parent, name string) (DirectoryItem, error) {
	if err := ValidateName(name); err != nil {
		return DirectoryItem{}, err
	}
	self, err := NewMarker()
	if err != nil {
		return DirectoryItem{}, err
	}
	encoded, err := c.names.EncryptName(name, self)
	if err != nil {
		return DirectoryItem{}, err
	}
	key := DirPointerKey(parent, self, encoded, "")
	if err := c.client.PutObject(ctx, key, nil, 0, ""); err != nil {
		return DirectoryItem{}, err
	}
	return DirectoryItem{
		Name:         name,
		Marker:       self,
		ParentMarker: parent,
		IsDirectory:  true,
		PointerKey:   key,
	}, nil
}

// ensureDirs walks parts from the root, creating missing directories, and
// returns the marker of the last one.
func (c *Connection) ensureDirs(ctx context.Context, parts []string) (string, error) {
	marker := RootMarker
	for _, name := range parts {
		listing, err := c.listMarker(ctx, marker)
		if err != nil {
			return "", err
		}
		if found, ok := listing.ItemFor(name); ok {
			if !found.IsDirectory {
				return "", ErrNotADirectory
			}
			marker = found.Marker
			continue
		}
		created, err := c.mkdirIn(ctx, marker, name)
		if err != nil {
			return "", err
		}
		marker = created.Marker
	}
	return marker, nil
}

// Mkdir creates one directory. Its parent must exist.
func (c *Connection) Mkdir(ctx context.Context, b LogicalBucket, path string) (DirectoryItem, error) {
	if err := c.setBucket(ctx, b); err != nil {
		return DirectoryItem{}, err
	}
	parents, name, err := splitParent(path)
	if err != nil {
		return DirectoryItem{}, err
	}

	parent, item, err := c.resolve(ctx, parents)
	if err != nil {
		return DirectoryItem{}, newPathError("mkdir", path, err)
	}
	if item != nil && !item.IsDirectory {
		return DirectoryItem{}, newPathError("mkdir", path, ErrNotADirectory)
	}
	listing, err := c.listMarker(ctx, parent)
	if err != nil {
		return DirectoryItem{}, newPathError("mkdir", path, err)
	}
	if _, ok := listing.ItemFor(name); ok {
		return DirectoryItem{}, newPathError("mkdir", path, ErrExist)
	}

	created, err := c.mkdirIn(ctx, parent, name)
	if err != nil {
		return DirectoryItem{}, newPathError("mkdir", path, err)
	}
	return created, nil
}

// MkdirAll creates the directory at path and any missing parents.
func (c *Connection) MkdirAll(ctx context.Context, b LogicalBucket, path string) error {
	if err := c.setBucket(ctx, b); err != nil {
		return err
	}
	if _, err := c.ensureDirs(ctx, splitPath(path)); err != nil {
		return newPathError("mkdir", path, err)
	}
	return nil
}

// WriteFile stores size bytes from r as a new file at path, creating
// missing parent directories. The pointer is written before the content;
// if the content fails the pointer is deleted again.
//
// Existing entries with the same name are not replaced.
func (c *Connection) WriteFile(ctx context.Context, b LogicalBucket, path string, r io.Reader, size int64) error {
	if err := c.setBucket(ctx, b); err != nil {
		return err
	}
	if err := ValidateSize(size); err != nil {
		return err
	}
	parents, name, err := splitParent(path)
	if err != nil {
		return err
	}
	if err := ValidateName(name); err != nil {
		return err
	}

	parent, err := c.ensureDirs(ctx, parents)
	if err != nil {
		return newPathError("write", path, err)
	}

	self, err := NewMarker()
	if err != nil {
		return err
	}
	encoded, err := c.names.EncryptName(name, self)
	if err != nil {
		return newPathError("write", path, err)
	}
	pointer := FilePointerKey(parent, self, encoded, size, 0, "")
	if err := c.client.PutObject(ctx, pointer, nil, 0, ""); err != nil {
		return newPathError("write", path, err)
	}

	var encryptionKey string
	if c.EncryptNewFiles() {
		encryptionKey = c.keyFile.EncryptionKey
	}
	if err := c.client.PutObject(ctx, ContentObjectKey(self), r, size, encryptionKey); err != nil {
		if derr := c.client.DeleteObject(ctx, pointer); derr != nil {
			c.metrics.recordOrphan()
			c.log.Warn("failed to remove pointer after content write failure",
				zap.String("bucket", b.Path),
				zap.String("path", path),
				zap.String("pointer", pointer),
				zap.Error(derr))
			return &OrphanedPointerError{PointerKey: pointer, Cause: err, CleanupErr: derr}
		}
		return newPathError("write", path, err)
	}

	c.metrics.recordUpload(size)
	c.log.Debug("file written",
		zap.String("bucket", b.Path),
		zap.String("path", path),
		zap.String("marker", self),
		zap.Int64("size", size))
	return nil
}

// ReadFile opens the content of the file at path. The caller must close it.
func (c *Connection) ReadFile(ctx context.Context, b LogicalBucket, path string) (io.ReadCloser, error) {
	_, item, err := c.Resolve(ctx, b, path)
	if err != nil {
		return nil, err
	}
	if item == nil || item.IsDirectory {
		return nil, newPathError("read", path, ErrNotAFile)
	}

	rc, err := c.client.GetObject(ctx, item.FileKey)
	if err != nil {
		return nil, newPathError("read", path, err)
	}
	return &countingReadCloser{ReadCloser: rc, done: c.metrics.recordDownload}, nil
}

// DeleteFile removes the file at path. Directories are not deleted.
func (c *Connection) DeleteFile(ctx context.Context, b LogicalBucket, path string) error {
	_, item, err := c.Resolve(ctx, b, path)
	if err != nil {
		return err
	}
	if item == nil {
		return newPathError("delete", path, ErrNotAFile)
	}
	if err := c.DeleteItem(ctx, b, *item); err != nil {
		return newPathError("delete", path, err)
	}
	return nil
}

// DeleteItem removes a file item's pointer and then its content. There is
// no rollback if the second delete fails.
func (c *Connection) DeleteItem(ctx context.Context, b LogicalBucket, item DirectoryItem) error {
	if item.IsDirectory || item.FileKey == "" {
		return ErrNotAFile
	}
	if err := c.setBucket(ctx, b); err != nil {
		return err
	}
	if err := c.client.DeleteObject(ctx, item.PointerKey); err != nil {
		return err
	}
	return c.client.DeleteObject(ctx, item.FileKey)
}

// countingReadCloser reports the bytes read through it once, on Close.
type countingReadCloser struct {
	io.ReadCloser
	n    int64
	once sync.Once
	done func(int64)
}

func (r *countingReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countingReadCloser) Close() error {
	r.once.Do(func() { r.done(r.n) })
	return r.ReadCloser.Close()
}
