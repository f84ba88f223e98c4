package jdfs

import (
	"reflect"
	"strings"
	"testing"
)

const (
	testParent = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testSelf   = "0123456789abcdef0123456789abcdef"
)

func TestPointerKeys(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"dir", DirPointerKey(RootMarker, testSelf, "docs", ""), "ROOT/" + testSelf + "/dir/docs"},
		{"dir with attributes", DirPointerKey(testParent, testSelf, "docs", "a1"), testParent + "/" + testSelf + "/dir/docs/a1"},
		{"file", FilePointerKey(RootMarker, testSelf, "b.txt", 42, 0, ""), "ROOT/" + testSelf + "/file/b.txt/42/0/"},
		{"content", ContentObjectKey(testSelf), "FILES/" + testSelf + "/0"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: key = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestDecodePointer(t *testing.T) {
	names := noOpFilenameCipher{}

	tests := []struct {
		name string
		key  string
		ok   bool
		want DirectoryItem
	}{
		{
			name: "file",
			key:  testSelf + "/file/b.txt/42/4096/attrs",
			ok:   true,
			want: DirectoryItem{
				Name:         "b.txt",
				Marker:       testSelf,
				ParentMarker: testParent,
				Size:         42,
				BlockSize:    4096,
				Attributes:   "attrs",
				PointerKey:   testParent + "/" + testSelf + "/file/b.txt/42/4096/attrs",
				FileKey:      "FILES/" + testSelf + "/0",
			},
		},
		{
			name: "file without attributes",
			key:  testSelf + "/file/empty/0/0/",
			ok:   true,
			want: DirectoryItem{
				Name:         "empty",
				Marker:       testSelf,
				ParentMarker: testParent,
				PointerKey:   testParent + "/" + testSelf + "/file/empty/0/0/",
				FileKey:      "FILES/" + testSelf + "/0",
			},
		},
		{
			name: "file with trailing slash dropped",
			key:  testSelf + "/file/empty/3/0",
			ok:   true,
			want: DirectoryItem{
				Name:         "empty",
				Marker:       testSelf,
				ParentMarker: testParent,
				Size:         3,
				PointerKey:   testParent + "/" + testSelf + "/file/empty/3/0",
				FileKey:      "FILES/" + testSelf + "/0",
			},
		},
		{
			name: "dir",
			key:  testSelf + "/dir/docs",
			ok:   true,
			want: DirectoryItem{
				Name:         "docs",
				Marker:       testSelf,
				ParentMarker: testParent,
				IsDirectory:  true,
				PointerKey:   testParent + "/" + testSelf + "/dir/docs",
			},
		},
		{
			name: "dir with attributes",
			key:  testSelf + "/dir/docs/x",
			ok:   true,
			want: DirectoryItem{
				Name:         "docs",
				Marker:       testSelf,
				ParentMarker: testParent,
				IsDirectory:  true,
				Attributes:   "x",
				PointerKey:   testParent + "/" + testSelf + "/dir/docs/x",
			},
		},
		{name: "short marker", key: "abc/dir/docs"},
		{name: "unknown kind", key: testSelf + "/link/docs"},
		{name: "file missing sizes", key: testSelf + "/file/b.txt"},
		{name: "non numeric size", key: testSelf + "/file/b.txt/big/0/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok, err := decodePointer(testParent, tt.key, names)
			if err != nil {
				t.Fatalf("decodePointer failed: %v", err)
			}
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !reflect.DeepEqual(item, tt.want) {
				t.Errorf("item = %+v, want %+v", item, tt.want)
			}
		})
	}
}

func TestDecodePointerEncryptedName(t *testing.T) {
	c := testFilenameCipher(t)
	enc, err := c.EncryptName("secret plans.doc", testSelf)
	if err != nil {
		t.Fatalf("EncryptName failed: %v", err)
	}
	key := FilePointerKey(RootMarker, testSelf, enc, 7, 0, "")

	item, ok, err := decodePointer(RootMarker, strings.TrimPrefix(key, RootMarker+"/"), c)
	if err != nil || !ok {
		t.Fatalf("decodePointer = %v, %v", ok, err)
	}
	if item.Name != "secret plans.doc" || item.Size != 7 {
		t.Errorf("item = %+v", item)
	}
	if item.PointerKey != key {
		t.Errorf("PointerKey = %q, want %q", item.PointerKey, key)
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"/", []string{}},
		{"", []string{}},
		{"/a/b.txt", []string{"a", "b.txt"}},
		{`\a\b`, []string{"a", "b"}},
		{"a//b/", []string{"a", "b"}},
	}
	for _, tt := range tests {
		got := splitPath(tt.in)
		if len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
			t.Errorf("splitPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, _, err := splitParent("/"); !IsValidationError(err) {
		t.Errorf("splitParent(/): expected ValidationError, got %v", err)
	}
	parents, name, err := splitParent("/a/b/c")
	if err != nil || name != "c" || !reflect.DeepEqual(parents, []string{"a", "b"}) {
		t.Errorf("splitParent = %q, %q, %v", parents, name, err)
	}
}
