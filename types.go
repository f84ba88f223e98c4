package jdfs

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// BucketType represents the addressing scheme of a logical bucket
type BucketType uint8

const (
	// BucketCompatibility addresses a whole S3 bucket by its own name
	BucketCompatibility BucketType = iota
	// BucketLegacy addresses a <hash>-<name> S3 bucket
	BucketLegacy
	// BucketAdvanced addresses a sub-bucket of the per-account jd2 bucket
	BucketAdvanced
)

// String returns the string representation of the bucket type
func (t BucketType) String() string {
	switch t {
	case BucketCompatibility:
		return "compatibility"
	case BucketLegacy:
		return "legacy"
	case BucketAdvanced:
		return "advanced"
	default:
		return "unknown"
	}
}

// BucketFilter selects which bucket types ListBuckets returns
type BucketFilter uint8

const (
	AllBuckets BucketFilter = iota
	LegacyOnly
	AdvancedOnly
	CompatOnly
)

func (f BucketFilter) accepts(t BucketType) bool {
	switch f {
	case AllBuckets:
		return true
	case LegacyOnly:
		return t == BucketLegacy
	case AdvancedOnly:
		return t == BucketAdvanced
	case CompatOnly:
		return t == BucketCompatibility
	}
	return false
}

// Credential is an access key pair. It is never mutated after construction.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
}

// LogicalBucket is a bucket as presented to users.
type LogicalBucket struct {
	Type        BucketType
	S3Bucket    string // Underlying S3 bucket name
	Path        string // S3Bucket/DisplayName for advanced buckets
	DisplayName string // Human-friendly name; the key prefix for advanced buckets
}

// String returns "name (type)"
func (b LogicalBucket) String() string {
	return b.DisplayName + " (" + b.Type.String() + ")"
}

// DirectoryItem is a decoded pointer object.
type DirectoryItem struct {
	Name         string
	Marker       string
	ParentMarker string
	IsDirectory  bool
	Size         int64
	BlockSize    int64
	Attributes   string
	PointerKey   string // Pointer object key, relative to the bucket prefix
	FileKey      string // Content object key; empty for directories
}

// DirectoryListing holds the children of one directory, keyed by name.
type DirectoryListing struct {
	Directories map[string]DirectoryItem
	Files       map[string]DirectoryItem
}

// NewDirectoryListing returns an empty listing
func NewDirectoryListing() *DirectoryListing {
	return &DirectoryListing{
		Directories: make(map[string]DirectoryItem),
		Files:       make(map[string]DirectoryItem),
	}
}

// Add inserts item, replacing an entry of the same kind and name.
func (l *DirectoryListing) Add(item DirectoryItem) {
	if item.IsDirectory {
		l.Directories[item.Name] = item
	} else {
		l.Files[item.Name] = item
	}
}

// ItemFor looks up name, preferring directories.
func (l *DirectoryListing) ItemFor(name string) (DirectoryItem, bool) {
	if item, ok := l.Directories[name]; ok {
		return item, true
	}
	item, ok := l.Files[name]
	return item, ok
}

// Len returns the number of entries
func (l *DirectoryListing) Len() int {
	return len(l.Directories) + len(l.Files)
}

// SortedDirectories returns directories ordered by name
func (l *DirectoryListing) SortedDirectories() []DirectoryItem {
	return sortedItems(l.Directories)
}

// SortedFiles returns files ordered by name
func (l *DirectoryListing) SortedFiles() []DirectoryItem {
	return sortedItems(l.Files)
}

func sortedItems(m map[string]DirectoryItem) []DirectoryItem {
	items := make([]DirectoryItem, 0, len(m))
	for _, item := range m {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

// PasswordFunc is asked for a password when no cached password decrypts an
// object. hint describes what is being unlocked ("Bucket Password" or an
// object path). Returning false declines.
type PasswordFunc func(hint string) (string, bool)

// Transport sends a fully signed request. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Defaults
const (
	DefaultEndpoint           = "s3.amazonaws.com"
	DefaultVisibilityAttempts = 20
	DefaultVisibilityBackoff  = 5 * time.Second
)

// Config contains configuration for a Connection
type Config struct {
	// Credential signs every request
	Credential Credential

	// Endpoint is the store host (and optional port); defaults to s3.amazonaws.com
	Endpoint string

	// Insecure selects plain http
	Insecure bool

	// ForcePathStyle addresses every bucket path-style, not only *-us buckets
	ForcePathStyle bool

	// Transport sends requests; defaults to http.DefaultClient
	Transport Transport

	// PasswordFunc is asked for missing passwords; nil declines
	PasswordFunc PasswordFunc

	// PageSize is sent as max-keys on listings; 0 leaves it to the store
	PageSize int

	// VisibilityAttempts bounds the post-creation bucket visibility poll
	VisibilityAttempts int

	// VisibilityBackoff is the fixed delay between visibility polls
	VisibilityBackoff time.Duration

	// Logger receives structured logs; defaults to a no-op logger
	Logger *zap.Logger

	// Metrics collects request metrics; nil disables them
	Metrics *Metrics
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Credential.AccessKeyID == "" {
		return NewValidationError("access_key_id", "", "access key id cannot be empty")
	}
	if c.Credential.SecretAccessKey == "" {
		return NewValidationError("secret_access_key", "", "secret access key cannot be empty")
	}
	if strings.Contains(c.Endpoint, "/") {
		return NewValidationError("endpoint", c.Endpoint, "endpoint must be a host, not a URL")
	}
	if c.PageSize < 0 {
		return NewValidationError("page_size", c.PageSize, "page size cannot be negative")
	}
	if c.VisibilityAttempts < 0 {
		return NewValidationError("visibility_attempts", c.VisibilityAttempts, "attempts cannot be negative")
	}
	if c.VisibilityBackoff < 0 {
		return errors.New("visibility backoff cannot be negative")
	}
	return nil
}

// withDefaults returns a copy of c with zero values filled in
func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Transport == nil {
		c.Transport = http.DefaultClient
	}
	if c.VisibilityAttempts == 0 {
		c.VisibilityAttempts = DefaultVisibilityAttempts
	}
	if c.VisibilityBackoff == 0 {
		c.VisibilityBackoff = DefaultVisibilityBackoff
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
