package jdfs

import (
	"context"
	"encoding/xml"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ListOptions configures a listing of the current route.
type ListOptions struct {
	// Prefix restricts keys, relative to the route prefix
	Prefix string

	// Delimiter groups keys into common prefixes
	Delimiter string

	// Marker resumes a listing; use a previous Lister.Marker()
	Marker string

	// MaxKeys bounds each page; 0 uses Config.PageSize
	MaxKeys int
}

// ListEntry is a key or common prefix with the route prefix and
// ListOptions.Prefix removed.
type ListEntry struct {
	Key          string
	CommonPrefix bool
}

type listBucketResult struct {
	IsTruncated bool   `xml:"IsTruncated"`
	NextMarker  string `xml:"NextMarker"`
	Contents    []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
	CommonPrefixes []struct {
		Prefix string `xml:"Prefix"`
	} `xml:"CommonPrefixes"`
}

// Lister pages through a bucket listing. It is not safe for concurrent use.
type Lister struct {
	client   *Client
	opts     ListOptions
	resource string
	prefix   string
	strip    int
	cursor   string
	done     bool
}

// NewLister starts a listing of the current route.
func (c *Client) NewLister(opts ListOptions) *Lister {
	if opts.MaxKeys == 0 {
		opts.MaxKeys = c.cfg.PageSize
	}
	prefix := c.route.PathPrefix + opts.Prefix
	return &Lister{
		client:   c,
		opts:     opts,
		resource: "/" + c.route.Bucket,
		prefix:   prefix,
		strip:    len(prefix),
		cursor:   opts.Marker,
	}
}

// More reports whether another page may be available
func (l *Lister) More() bool {
	return !l.done
}

// Marker returns the continuation marker. A Lister created with it resumes
// after the last returned page.
func (l *Lister) Marker() string {
	return l.cursor
}

// Next fetches one page. It returns nil once the listing is exhausted.
func (l *Lister) Next(ctx context.Context) ([]ListEntry, error) {
	if l.done {
		return nil, nil
	}

	query := url.Values{}
	query.Set("prefix", l.prefix)
	if l.cursor != "" {
		query.Set("marker", l.cursor)
	}
	if l.opts.Delimiter != "" {
		query.Set("delimiter", l.opts.Delimiter)
	}
	if l.opts.MaxKeys > 0 {
		query.Set("max-keys", strconv.Itoa(l.opts.MaxKeys))
	}

	resp, err := l.client.Perform(ctx, &Request{
		Method:   http.MethodGet,
		Resource: l.resource,
		Query:    query,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	var page listBucketResult
	if err := xml.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to parse listing of %s: %w", l.resource, err)
	}

	entries := make([]ListEntry, 0, len(page.Contents)+len(page.CommonPrefixes))
	var last string
	for _, c := range page.Contents {
		entries = append(entries, ListEntry{Key: l.trim(c.Key)})
		last = max(last, c.Key)
	}
	for _, p := range page.CommonPrefixes {
		entries = append(entries, ListEntry{Key: l.trim(p.Prefix), CommonPrefix: true})
		last = max(last, p.Prefix)
	}

	if !page.IsTruncated {
		l.done = true
		return entries, nil
	}

	next := page.NextMarker
	if next == "" {
		next = last
	}
	if next == "" || next == l.cursor {
		l.done = true
		return entries, fmt.Errorf("listing of %s is truncated but did not advance past %q", l.resource, l.cursor)
	}
	l.cursor = next
	return entries, nil
}

func (l *Lister) trim(key string) string {
	if strings.HasPrefix(key, l.prefix) {
		return key[l.strip:]
	}
	return key
}

// All iterates over every remaining entry, fetching pages lazily. Iteration
// stops at the first error, which is yielded with a zero entry.
func (l *Lister) All(ctx context.Context) iter.Seq2[ListEntry, error] {
	return func(yield func(ListEntry, error) bool) {
		for l.More() {
			entries, err := l.Next(ctx)
			for _, e := range entries {
				if !yield(e, nil) {
					return
				}
			}
			if err != nil {
				yield(ListEntry{}, err)
				return
			}
		}
	}
}

// List collects every entry under opts.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]ListEntry, error) {
	var out []ListEntry
	for e, err := range c.NewLister(opts).All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}
