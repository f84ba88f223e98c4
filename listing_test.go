package jdfs

import (
	"context"
	"fmt"
	"slices"
	"testing"
)

func newListingClient(t *testing.T, pageSize int, keys ...string) *Client {
	t.Helper()
	store := newTestStore(t)
	cfg := store.config(t)
	cfg.PageSize = pageSize
	client, err := NewClient(*cfg, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	ctx := context.Background()
	if err := client.CreateS3Bucket(ctx, "jd2-list-us"); err != nil {
		t.Fatalf("CreateS3Bucket failed: %v", err)
	}
	client.SetRoute("jd2-list-us", "bucket")
	for _, k := range keys {
		if err := client.PutObject(ctx, k, nil, 0, ""); err != nil {
			t.Fatalf("PutObject(%s) failed: %v", k, err)
		}
	}
	return client
}

func TestListerPages(t *testing.T) {
	var keys []string
	for i := 0; i < 7; i++ {
		keys = append(keys, fmt.Sprintf("ROOT/k%02d", i))
	}
	client := newListingClient(t, 2, append(keys, "FILES/x/0", "0.dir")...)
	ctx := context.Background()

	lister := client.NewLister(ListOptions{Prefix: "ROOT/"})
	var got []string
	pages := 0
	for lister.More() {
		entries, err := lister.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if len(entries) > 2 {
			t.Errorf("page of %d entries exceeds max-keys", len(entries))
		}
		for _, e := range entries {
			got = append(got, "ROOT/"+e.Key)
		}
		pages++
	}

	if !slices.Equal(got, keys) {
		t.Errorf("listed %q, want %q", got, keys)
	}
	if pages < 4 {
		t.Errorf("pages = %d, want at least 4", pages)
	}
	if entries, err := lister.Next(ctx); entries != nil || err != nil {
		t.Errorf("Next after exhaustion = %v, %v", entries, err)
	}
}

func TestListerResume(t *testing.T) {
	client := newListingClient(t, 0, "ROOT/a", "ROOT/b", "ROOT/c", "ROOT/d")
	ctx := context.Background()

	first := client.NewLister(ListOptions{Prefix: "ROOT/", MaxKeys: 2})
	page, err := first.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if len(page) != 2 || page[0].Key != "a" || page[1].Key != "b" {
		t.Fatalf("first page = %+v", page)
	}

	rest, err := client.List(ctx, ListOptions{Prefix: "ROOT/", Marker: first.Marker()})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rest) != 2 || rest[0].Key != "c" || rest[1].Key != "d" {
		t.Errorf("resumed listing = %+v", rest)
	}
}

func TestListDelimiter(t *testing.T) {
	client := newListingClient(t, 0, "ROOT/x", "FILES/m1/0", "FILES/m2/0", "0.dir")
	ctx := context.Background()

	entries, err := client.List(ctx, ListOptions{Delimiter: "/"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var keys, prefixes []string
	for _, e := range entries {
		if e.CommonPrefix {
			prefixes = append(prefixes, e.Key)
		} else {
			keys = append(keys, e.Key)
		}
	}
	slices.Sort(prefixes)
	if !slices.Equal(keys, []string{"0.dir"}) || !slices.Equal(prefixes, []string{"FILES/", "ROOT/"}) {
		t.Errorf("keys = %q, prefixes = %q", keys, prefixes)
	}
}

func TestListerAllStopsEarly(t *testing.T) {
	client := newListingClient(t, 1, "ROOT/a", "ROOT/b", "ROOT/c")
	n := 0
	for _, err := range client.NewLister(ListOptions{Prefix: "ROOT/"}).All(context.Background()) {
		if err != nil {
			t.Fatalf("All failed: %v", err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d entries, want 2", n)
	}
}
