package jdfs

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Object metadata headers carrying encryption parameters
const (
	HeaderCrypt     = "x-amz-meta-crypt"
	HeaderCryptSalt = "x-amz-meta-crypt-salt"
	HeaderDate      = "x-amz-date"

	contentTypeOctetStream = "application/octet-stream"
	maxErrorBody           = 64 << 10
)

// Route selects the bucket and key prefix object operations address.
type Route struct {
	Bucket     string
	PathPrefix string // "<display name>/" for advanced buckets, else ""
	PathStyle  bool
}

// Request is a single store request before signing.
type Request struct {
	// Method is the HTTP verb
	Method string

	// Resource is the unescaped path-style resource: "/", "/<bucket>" or
	// "/<bucket>/<key>". Virtual-host addressing is derived from it.
	Resource string

	// Query holds request parameters, encoded into the URL but not signed
	Query url.Values

	// Body is the plaintext payload; nil for requests without one
	Body io.Reader

	// ContentLength is the exact length of Body
	ContentLength int64

	// EncryptionKey encrypts Body when non-empty
	EncryptionKey string

	// Header holds additional headers to send and sign
	Header http.Header

	// Raw disables transparent decryption of the response
	Raw bool

	// Hint is passed to the password callback; defaults to Resource
	Hint string
}

// Response is a completed store request. Body must be closed by the caller.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Encrypted  bool
}

// Close closes the response body
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Client signs and sends requests to the object store.
type Client struct {
	cfg     Config
	keys    *KeyRing
	log     *zap.Logger
	metrics *Metrics
	route   Route
}

// NewClient creates a client. Decrypted responses look up their password in
// keys.
func NewClient(cfg Config, keys *KeyRing) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if keys == nil {
		keys = NewKeyRing(cfg.PasswordFunc, cfg.Metrics)
	}
	return &Client{
		cfg:     cfg,
		keys:    keys,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Keys returns the client's key ring
func (c *Client) Keys() *KeyRing {
	return c.keys
}

// PathStyle reports whether bucket is addressed path-style.
func (c *Client) PathStyle(bucket string) bool {
	return c.cfg.ForcePathStyle || strings.HasSuffix(bucket, "-us")
}

// SetRoute points object operations at bucket, with every key under
// prefix. A non-empty prefix gains a trailing slash.
func (c *Client) SetRoute(bucket, prefix string) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	c.route = Route{Bucket: bucket, PathPrefix: prefix, PathStyle: c.PathStyle(bucket)}
}

// Route returns the current route
func (c *Client) Route() Route {
	return c.route
}

func (c *Client) objectResource(key string) string {
	return "/" + c.route.Bucket + "/" + c.route.PathPrefix + key
}

func (c *Client) scheme() string {
	if c.cfg.Insecure {
		return "http"
	}
	return "https"
}

// Perform signs and sends req. Store errors are returned as *ProtocolError
// and transport failures as *TransportError. Encrypted responses are
// decrypted unless req.Raw is set.
func (c *Client) Perform(ctx context.Context, req *Request) (*Response, error) {
	resource := req.Resource
	if !strings.HasPrefix(resource, "/") {
		resource = "/" + resource
	}

	host := c.cfg.Endpoint
	path := resource
	virtualBucket := ""
	if bucket, rest, _ := strings.Cut(resource[1:], "/"); bucket != "" && !c.PathStyle(bucket) {
		host = bucket + "." + c.cfg.Endpoint
		path = "/" + rest
		virtualBucket = bucket
	}

	signedResource := EscapePath(path)
	rawURL := c.scheme() + "://" + host + signedResource
	if q := req.Query.Encode(); q != "" {
		rawURL += "?" + q
	}

	body := req.Body
	if body == nil && req.EncryptionKey != "" {
		body = bytes.NewReader(nil)
	}
	header := http.Header{}
	for k, vs := range req.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	header.Set(HeaderDate, time.Now().UTC().Format(http.TimeFormat))

	if body != nil {
		header.Set("Content-Type", contentTypeOctetStream)
		if req.EncryptionKey != "" {
			keyHash, err := NewKeyHash(req.EncryptionKey)
			if err != nil {
				return nil, err
			}
			salt, err := NewSalt()
			if err != nil {
				return nil, err
			}
			header.Set(HeaderCrypt, keyHashPrefix+keyHash)
			header.Set(HeaderCryptSalt, salt)
			if body, err = EncryptReader(body, req.EncryptionKey, salt); err != nil {
				return nil, err
			}
		}
	}

	var httpBody io.Reader
	if body != nil && req.ContentLength > 0 {
		httpBody = body
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, rawURL, httpBody)
	if err != nil {
		return nil, &TransportError{Op: req.Method, URL: rawURL, Err: err}
	}
	httpReq.Header = header
	if body != nil {
		httpReq.ContentLength = req.ContentLength
	}

	stringToSign := StringToSign(req.Method, signedResource, header, virtualBucket)
	httpReq.Header.Set("Authorization", AuthorizationHeader(c.cfg.Credential, stringToSign))

	requestID := uuid.NewString()
	start := time.Now()
	resp, err := c.cfg.Transport.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.recordRequest(req.Method, 0, elapsed)
		c.log.Debug("store request failed",
			zap.String("request_id", requestID),
			zap.String("method", req.Method),
			zap.String("url", rawURL),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, &TransportError{Op: req.Method, URL: rawURL, Err: err}
	}
	c.metrics.recordRequest(req.Method, resp.StatusCode, elapsed)
	c.log.Debug("store request",
		zap.String("request_id", requestID),
		zap.String("method", req.Method),
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed))

	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		return nil, parseProtocolError(resp, resource)
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}
	crypt := resp.Header.Get(HeaderCrypt)
	if crypt == "" || req.Raw {
		out.Encrypted = crypt != ""
		return out, nil
	}

	hint := req.Hint
	if hint == "" {
		hint = resource
	}
	plain, err := c.decryptBody(resp, crypt, hint)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	out.Body = plain
	out.Encrypted = true
	return out, nil
}

func (c *Client) decryptBody(resp *http.Response, crypt, hint string) (io.ReadCloser, error) {
	keyHash, ok := strings.CutPrefix(crypt, keyHashPrefix)
	if !ok {
		return nil, &CryptographicError{Path: hint, Message: fmt.Sprintf("unsupported encryption %q, AES expected", crypt)}
	}
	salt := resp.Header.Get(HeaderCryptSalt)
	if salt == "" {
		return nil, &CryptographicError{Path: hint, Message: "encrypted object has no " + HeaderCryptSalt + " header"}
	}
	key, err := c.keys.Lookup(keyHash, hint)
	if err != nil {
		return nil, err
	}
	return DecryptReadCloser(resp.Body, key, salt)
}

type errorBody struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func parseProtocolError(resp *http.Response, resource string) error {
	pe := &ProtocolError{StatusCode: resp.StatusCode, Resource: resource}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	if len(data) > 0 && xml.Unmarshal(data, &eb) == nil && eb.Code != "" {
		pe.Code = eb.Code
		pe.Message = eb.Message
		return pe
	}
	pe.Code = strconv.Itoa(resp.StatusCode)
	pe.Message = http.StatusText(resp.StatusCode)
	if resp.StatusCode == http.StatusNotFound {
		pe.Code = CodeNoSuchKey
	}
	return pe
}

// GetObject fetches key under the current route. Encrypted objects are
// decrypted, asking for a password with the key as hint.
func (c *Client) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.getObject(ctx, key, key, false)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) getObject(ctx context.Context, key, hint string, raw bool) (*Response, error) {
	return c.Perform(ctx, &Request{
		Method:   http.MethodGet,
		Resource: c.objectResource(key),
		Raw:      raw,
		Hint:     hint,
	})
}

// ObjectExists reports whether key exists under the current route without
// decrypting it.
func (c *Client) ObjectExists(ctx context.Context, key string) (bool, error) {
	resp, err := c.getObject(ctx, key, key, true)
	if err != nil {
		if IsAbsent(err) {
			return false, nil
		}
		return false, err
	}
	resp.Close()
	return true, nil
}

// PutObject stores size bytes from body at key. A non-empty encryptionKey
// encrypts the content.
func (c *Client) PutObject(ctx context.Context, key string, body io.Reader, size int64, encryptionKey string) error {
	if body == nil {
		body = bytes.NewReader(nil)
		size = 0
	}
	resp, err := c.Perform(ctx, &Request{
		Method:        http.MethodPut,
		Resource:      c.objectResource(key),
		Body:          body,
		ContentLength: size,
		EncryptionKey: encryptionKey,
	})
	if err != nil {
		return err
	}
	return resp.Close()
}

// DeleteObject removes key under the current route.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	resp, err := c.Perform(ctx, &Request{
		Method:   http.MethodDelete,
		Resource: c.objectResource(key),
	})
	if err != nil {
		return err
	}
	return resp.Close()
}

type listAllMyBucketsResult struct {
	Buckets []struct {
		Name string `xml:"Name"`
	} `xml:"Buckets>Bucket"`
}

// ListBuckets returns the names of every S3 bucket the credential owns.
func (c *Client) ListBuckets(ctx context.Context) ([]string, error) {
	resp, err := c.Perform(ctx, &Request{Method: http.MethodGet, Resource: "/"})
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	var result listAllMyBucketsResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse bucket list: %w", err)
	}
	names := make([]string, 0, len(result.Buckets))
	for _, b := range result.Buckets {
		names = append(names, b.Name)
	}
	return names, nil
}

// S3BucketExists reports whether the credential owns an S3 bucket named name.
func (c *Client) S3BucketExists(ctx context.Context, name string) (bool, error) {
	names, err := c.ListBuckets(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateS3Bucket creates an S3 bucket. A bucket already owned by the
// credential is not an error.
func (c *Client) CreateS3Bucket(ctx context.Context, name string) error {
	resp, err := c.Perform(ctx, &Request{Method: http.MethodPut, Resource: "/" + name})
	if err != nil {
		if ErrorCode(err) == CodeBucketAlreadyOwnedByYou {
			return nil
		}
		return err
	}
	return resp.Close()
}
