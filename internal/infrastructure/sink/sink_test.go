package sink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"PatentReporter/internal/config"
)

func TestFileSinkPublish(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "outputs")
	s := NewFileSink(dir)

	if err := s.Publish(context.Background(), "01J9Z", "# report"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "patent_report_01J9Z.md"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(raw) != "# report" {
		t.Fatalf("unexpected content %q", raw)
	}
}

type recordedRequest struct {
	method, path, contentType, body string
}

func fakeObjectStore(t *testing.T, bucketExists bool) (*httptest.Server, func() []recordedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(body)})
		mu.Unlock()

		if r.Method == http.MethodHead && !bucketExists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func newTestMinioSink(t *testing.T, server *httptest.Server, prefix string) *MinioSink {
	t.Helper()

	s, err := NewMinioSink(config.MinioConfig{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "reports",
		Prefix:    prefix,
	})
	if err != nil {
		t.Fatalf("NewMinioSink: %v", err)
	}
	return s
}

func TestMinioSinkPublish(t *testing.T) {
	t.Parallel()

	server, requests := fakeObjectStore(t, true)
	s := newTestMinioSink(t, server, "/kipris/")

	if err := s.Publish(context.Background(), "01J9Z", "# KIPRIS report"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("expected one upload, got %+v", got)
	}
	put := got[0]
	if put.method != http.MethodPut || put.path != "/reports/kipris/patent_report_01J9Z.md" {
		t.Fatalf("unexpected upload %s %s", put.method, put.path)
	}
	if put.contentType != markdownContentType || !strings.Contains(put.body, "# KIPRIS report") {
		t.Fatalf("unexpected upload payload %+v", put)
	}
}

func TestMinioSinkEnsureBucketCreatesMissingBucket(t *testing.T) {
	t.Parallel()

	server, requests := fakeObjectStore(t, false)
	s := newTestMinioSink(t, server, "")

	if err := s.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}

	got := requests()
	if len(got) != 2 || got[0].method != http.MethodHead || got[1].method != http.MethodPut {
		t.Fatalf("expected existence check then create, got %+v", got)
	}
	if s.ObjectName("x") != "patent_report_x.md" {
		t.Fatalf("unexpected object name without prefix: %s", s.ObjectName("x"))
	}
}
