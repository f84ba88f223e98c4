package jdfs

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// AccessKeyHash returns the lowercase hex MD5 of an access key id.
func AccessKeyHash(accessKey string) string {
	sum := md5.Sum([]byte(accessKey))
	return hex.EncodeToString(sum[:])
}

// AdvancedBucketName returns the per-account S3 bucket that holds every
// advanced bucket of accessKey.
func AdvancedBucketName(accessKey string) string {
	return "jd2-" + AccessKeyHash(accessKey) + "-us"
}

// NewAdvancedBucket returns the logical advanced bucket name for accessKey.
func NewAdvancedBucket(accessKey, name string) LogicalBucket {
	s3Bucket := AdvancedBucketName(accessKey)
	return LogicalBucket{
		Type:        BucketAdvanced,
		S3Bucket:    s3Bucket,
		Path:        s3Bucket + "/" + name,
		DisplayName: name,
	}
}

// Classifier sorts S3 bucket names into bucket types for one access key.
type Classifier struct {
	advanced *regexp.Regexp
	legacy   *regexp.Regexp
}

// NewClassifier builds the bucket name patterns for accessKey.
func NewClassifier(accessKey string) *Classifier {
	hash := AccessKeyHash(accessKey)
	// Some legacy buckets dropped zero digits from the hash.
	legacyHash := strings.ReplaceAll(hash, "0", "0?")
	return &Classifier{
		advanced: regexp.MustCompile(`^jd2-` + hash + `-(us|eu)$`),
		legacy:   regexp.MustCompile(`^` + legacyHash + `-(.+)$`),
	}
}

// Classify returns the type of an S3 bucket name.
func (c *Classifier) Classify(s3Bucket string) BucketType {
	switch {
	case c.advanced.MatchString(s3Bucket):
		return BucketAdvanced
	case c.legacy.MatchString(s3Bucket):
		return BucketLegacy
	default:
		return BucketCompatibility
	}
}

// Bucket returns the logical bucket for a legacy or compatibility S3 bucket.
// Advanced S3 buckets hold several logical buckets and are expanded by
// listing instead.
func (c *Classifier) Bucket(s3Bucket string) LogicalBucket {
	switch c.Classify(s3Bucket) {
	case BucketLegacy:
		_, display, _ := strings.Cut(s3Bucket, "-")
		return LogicalBucket{Type: BucketLegacy, S3Bucket: s3Bucket, Path: s3Bucket, DisplayName: display}
	case BucketAdvanced:
		return LogicalBucket{Type: BucketAdvanced, S3Bucket: s3Bucket, Path: s3Bucket, DisplayName: ""}
	default:
		return LogicalBucket{Type: BucketCompatibility, S3Bucket: s3Bucket, Path: s3Bucket, DisplayName: s3Bucket}
	}
}
