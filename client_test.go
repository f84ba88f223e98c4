package jdfs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type transportFunc func(*http.Request) (*http.Response, error)

func (f transportFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func cannedResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newStubClient(t *testing.T, forcePathStyle bool, fn transportFunc) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Credential:     testCredential,
		Endpoint:       "s3.example.com",
		ForcePathStyle: forcePathStyle,
		Transport:      fn,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestPerformAddressing(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		resource  string
		wantURL   string
		wantHost  string
		signedEnd string
	}{
		{
			name:      "us bucket is path style",
			resource:  "/jd2-abc-us/photos/0.dir",
			wantURL:   "https://s3.example.com/jd2-abc-us/photos/0.dir",
			signedEnd: "\n/jd2-abc-us/photos/0.dir",
		},
		{
			name:      "other bucket is virtual host",
			resource:  "/website/index.html",
			wantURL:   "https://website.s3.example.com/index.html",
			signedEnd: "\n/website/index.html",
		},
		{
			name:      "forced path style",
			force:     true,
			resource:  "/website/index.html",
			wantURL:   "https://s3.example.com/website/index.html",
			signedEnd: "\n/website/index.html",
		},
		{
			name:      "service root",
			resource:  "/",
			wantURL:   "https://s3.example.com/",
			signedEnd: "\n/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *http.Request
			c := newStubClient(t, tt.force, func(req *http.Request) (*http.Response, error) {
				got = req
				return cannedResponse(200, "", nil), nil
			})

			resp, err := c.Perform(context.Background(), &Request{Method: http.MethodGet, Resource: tt.resource})
			if err != nil {
				t.Fatalf("Perform failed: %v", err)
			}
			resp.Close()

			if got.URL.String() != tt.wantURL {
				t.Errorf("URL = %s, want %s", got.URL, tt.wantURL)
			}
			date := got.Header.Get(HeaderDate)
			if _, err := time.Parse(http.TimeFormat, date); err != nil {
				t.Errorf("x-amz-date %q is not an HTTP date: %v", date, err)
			}

			sts := "GET\n\n\n\nx-amz-date:" + date + tt.signedEnd
			if want := AuthorizationHeader(testCredential, sts); got.Header.Get("Authorization") != want {
				t.Errorf("Authorization = %q, want %q", got.Header.Get("Authorization"), want)
			}
		})
	}
}

func TestPerformQueryNotSigned(t *testing.T) {
	var got *http.Request
	c := newStubClient(t, true, func(req *http.Request) (*http.Response, error) {
		got = req
		return cannedResponse(200, "", nil), nil
	})

	q := map[string][]string{"prefix": {"photos/ROOT/"}, "max-keys": {"2"}}
	resp, err := c.Perform(context.Background(), &Request{Method: http.MethodGet, Resource: "/bucket", Query: q})
	if err != nil {
		t.Fatalf("Perform failed: %v", err)
	}
	resp.Close()

	if got.URL.Query().Get("prefix") != "photos/ROOT/" || got.URL.Query().Get("max-keys") != "2" {
		t.Errorf("query = %s", got.URL.RawQuery)
	}
	sts := "GET\n\n\n\nx-amz-date:" + got.Header.Get(HeaderDate) + "\n/bucket"
	if got.Header.Get("Authorization") != AuthorizationHeader(testCredential, sts) {
		t.Error("query parameters changed the signature")
	}
}

func TestPerformErrors(t *testing.T) {
	tests := []struct {
		name     string
		resp     *http.Response
		err      error
		check    func(error) bool
		wantCode string
	}{
		{
			name:     "xml error body",
			resp:     cannedResponse(403, `<?xml version="1.0"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`, nil),
			check:    IsProtocolError,
			wantCode: "AccessDenied",
		},
		{
			name:     "bare 404",
			resp:     cannedResponse(404, "", nil),
			check:    IsAbsent,
			wantCode: CodeNoSuchKey,
		},
		{
			name:     "redirect",
			resp:     cannedResponse(301, "", nil),
			check:    IsProtocolError,
			wantCode: "301",
		},
		{
			name:  "transport failure",
			err:   errors.New("connection refused"),
			check: IsTransportError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newStubClient(t, true, func(*http.Request) (*http.Response, error) {
				return tt.resp, tt.err
			})
			_, err := c.Perform(context.Background(), &Request{Method: http.MethodGet, Resource: "/b/k"})
			if err == nil || !tt.check(err) {
				t.Fatalf("Perform error = %v", err)
			}
			if ErrorCode(err) != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", ErrorCode(err), tt.wantCode)
			}
		})
	}
}

func TestPerformUnsupportedEncryption(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderCrypt, "blowfish_x")
	c := newStubClient(t, true, func(*http.Request) (*http.Response, error) {
		return cannedResponse(200, "x", header), nil
	})

	if _, err := c.GetObject(context.Background(), "k"); !IsCryptographicError(err) {
		t.Errorf("expected CryptographicError, got %v", err)
	}
}

func TestPerformMissingSalt(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderCrypt, keyHashPrefix+SaltedKeyHash(1, "pw", NetworkOrder))
	c := newStubClient(t, true, func(*http.Request) (*http.Response, error) {
		return cannedResponse(200, "ciphertext", header), nil
	})
	c.Keys().Add("pw")

	if _, err := c.GetObject(context.Background(), "k"); !IsCryptographicError(err) {
		t.Errorf("expected CryptographicError, got %v", err)
	}
}

func TestRoute(t *testing.T) {
	c := newStubClient(t, false, nil)

	c.SetRoute("jd2-abc-us", "photos")
	r := c.Route()
	if r.Bucket != "jd2-abc-us" || r.PathPrefix != "photos/" || !r.PathStyle {
		t.Errorf("Route = %+v", r)
	}
	if got := c.objectResource("0.key"); got != "/jd2-abc-us/photos/0.key" {
		t.Errorf("objectResource = %q", got)
	}

	c.SetRoute("website", "")
	if r := c.Route(); r.PathPrefix != "" || r.PathStyle {
		t.Errorf("Route = %+v", r)
	}
}

func TestClientObjects(t *testing.T) {
	store := newTestStore(t)
	cfg := store.config(t)
	client, err := NewClient(*cfg, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	ctx := context.Background()

	if err := client.CreateS3Bucket(ctx, "jd2-test-us"); err != nil {
		t.Fatalf("CreateS3Bucket failed: %v", err)
	}
	ok, err := client.S3BucketExists(ctx, "jd2-test-us")
	if err != nil || !ok {
		t.Fatalf("S3BucketExists = %v, %v", ok, err)
	}
	client.SetRoute("jd2-test-us", "b")

	if err := client.PutObject(ctx, "plain", strings.NewReader("visible"), 7, ""); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if err := client.PutObject(ctx, "secret", strings.NewReader("hidden text"), 11, "pw"); err != nil {
		t.Fatalf("PutObject encrypted failed: %v", err)
	}
	if err := client.PutObject(ctx, "empty", nil, 0, "pw"); err != nil {
		t.Fatalf("PutObject empty failed: %v", err)
	}

	// Raw access sees ciphertext and the encryption headers
	resp, err := client.getObject(ctx, "secret", "secret", true)
	if err != nil {
		t.Fatalf("raw get failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Close()
	if !resp.Encrypted || string(raw) == "hidden text" || len(raw) != 11 {
		t.Errorf("raw object = %q, encrypted = %v", raw, resp.Encrypted)
	}
	if !strings.HasPrefix(resp.Header.Get(HeaderCrypt), keyHashPrefix) || len(resp.Header.Get(HeaderCryptSalt)) != 32 {
		t.Errorf("encryption headers = %q / %q", resp.Header.Get(HeaderCrypt), resp.Header.Get(HeaderCryptSalt))
	}

	// No password cached and no prompt
	if _, err := client.GetObject(ctx, "secret"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}

	client.Keys().Add("pw")
	for key, want := range map[string]string{"plain": "visible", "secret": "hidden text", "empty": ""} {
		rc, err := client.GetObject(ctx, key)
		if err != nil {
			t.Fatalf("GetObject(%s) failed: %v", key, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != want {
			t.Errorf("GetObject(%s) = %q, want %q", key, data, want)
		}
	}

	if ok, err := client.ObjectExists(ctx, "secret"); err != nil || !ok {
		t.Errorf("ObjectExists(secret) = %v, %v", ok, err)
	}
	if err := client.DeleteObject(ctx, "secret"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	if ok, err := client.ObjectExists(ctx, "secret"); err != nil || ok {
		t.Errorf("ObjectExists after delete = %v, %v", ok, err)
	}
	if _, err := client.GetObject(ctx, "secret"); !IsAbsent(err) {
		t.Errorf("expected absent, got %v", err)
	}
}
