package jdfs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"go.uber.org/zap/zaptest"
)

var testCredential = Credential{
	AccessKeyID:     "AKIDEXAMPLE",
	SecretAccessKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
}

// testStore is an in-process S3 server backed by memory
type testStore struct {
	server   *httptest.Server
	endpoint string
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	faker := gofakes3.New(s3mem.New(), gofakes3.WithTimeSkewLimit(0))
	server := httptest.NewServer(faker.Server())
	t.Cleanup(server.Close)
	return &testStore{
		server:   server,
		endpoint: strings.TrimPrefix(server.URL, "http://"),
	}
}

func (s *testStore) config(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Credential:         testCredential,
		Endpoint:           s.endpoint,
		Insecure:           true,
		ForcePathStyle:     true,
		VisibilityAttempts: 3,
		VisibilityBackoff:  time.Millisecond,
		Logger:             zaptest.NewLogger(t),
	}
}

func (s *testStore) connect(t *testing.T, mutate ...func(*Config)) *Connection {
	t.Helper()
	cfg := s.config(t)
	for _, m := range mutate {
		m(cfg)
	}
	conn, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return conn
}

// newTestBucket creates an advanced bucket called name on a fresh connection
func (s *testStore) newTestBucket(t *testing.T, name, password string, encryptFilenames bool) (*Connection, LogicalBucket) {
	t.Helper()
	conn := s.connect(t)
	b := conn.AdvancedBucket(name)
	if err := conn.CreateBucket(context.Background(), b, password, encryptFilenames); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	return conn, b
}

func withPassword(password string) func(*Config) {
	return func(c *Config) {
		c.PasswordFunc = func(string) (string, bool) { return password, true }
	}
}

func writeString(t *testing.T, conn *Connection, b LogicalBucket, path, content string) {
	t.Helper()
	if err := conn.WriteFile(context.Background(), b, path, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", path, err)
	}
}

func readString(t *testing.T, conn *Connection, b LogicalBucket, path string) string {
	t.Helper()
	rc, err := conn.ReadFile(context.Background(), b, path)
	if err != nil {
		t.Fatalf("ReadFile(%s) failed: %v", path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading %s failed: %v", path, err)
	}
	return string(data)
}

// faultTransport fails requests matched by fail and counts every request
type faultTransport struct {
	mu    sync.Mutex
	next  Transport
	fail  func(*http.Request) bool
	count map[string]int
}

var errInjected = errors.New("injected transport failure")

func newFaultTransport(fail func(*http.Request) bool) *faultTransport {
	return &faultTransport{next: http.DefaultClient, fail: fail, count: make(map[string]int)}
}

func (f *faultTransport) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.count[req.Method]++
	fail := f.fail != nil && f.fail(req)
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.next.Do(req)
}

func (f *faultTransport) requests(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count[method]
}

func isContentPut(req *http.Request) bool {
	return req.Method == http.MethodPut && strings.Contains(req.URL.Path, "/"+contentSpace+"/")
}
