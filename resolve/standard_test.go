package resolve

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/99designs/keyring"
)

func TestStandardReadsFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "books.xml"), []byte("<BOOKLIST/>"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	base, err := DirURI(dir)
	if err != nil {
		t.Fatalf("DirURI() error = %v", err)
	}

	res, err := NewStandard().Resolve(context.Background(), Request{URI: "books.xml", BaseURI: base, Nature: NatureDocument})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Text() != "<BOOKLIST/>" {
		t.Errorf("Resolve() content = %q", res.Text())
	}
	if !strings.HasSuffix(res.URI, "/books.xml") || !strings.HasPrefix(res.URI, "file:///") {
		t.Errorf("Resolve() URI = %q, want absolute file URI", res.URI)
	}
	if res.ContentType != "application/xml" {
		t.Errorf("Resolve() content type = %q", res.ContentType)
	}

	if _, err := NewStandard().Resolve(context.Background(), Request{URI: "missing.xml", BaseURI: base}); err == nil {
		t.Error("Resolve(missing) error = nil, want error")
	}
}

func TestStandardDeclinesUnknownSchemes(t *testing.T) {
	res, err := NewStandard().Resolve(context.Background(), Request{URI: "urn:isbn:0451450523"})
	if err != nil || res != nil {
		t.Errorf("Resolve(urn) = %v, %v, want decline", res, err)
	}
}

func TestStandardFetchesWithKeyringCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || user != "reader" || password != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	creds := NewKeyringCredentialsFrom(keyring.NewArrayKeyring(nil))
	if err := creds.Store(host, "reader", "s3cret"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	s := &Standard{Client: srv.Client(), Credentials: creds}
	res, err := s.Resolve(context.Background(), Request{URI: srv.URL + "/page"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.ContentType != "text/html" {
		t.Errorf("Resolve() content type = %q, want text/html", res.ContentType)
	}

	anonymous := &Standard{Client: srv.Client()}
	if _, err := anonymous.Resolve(context.Background(), Request{URI: srv.URL + "/page"}); err == nil {
		t.Error("Resolve() without credentials error = nil, want 401 error")
	}
}

func TestStandardRejectsOversizedBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 16) + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	defer srv.Close()

	s := &Standard{Client: srv.Client(), MaxSize: 16}
	res, err := s.Resolve(context.Background(), Request{URI: srv.URL + "/"})
	if err != nil {
		t.Fatalf("Resolve() at the limit error = %v", err)
	}
	if len(res.Content) != 16 {
		t.Errorf("Resolve() read %d bytes, want 16", len(res.Content))
	}

	_, err = s.Resolve(context.Background(), Request{URI: srv.URL + "/y"})
	if !errors.Is(err, ErrResourceTooLarge) {
		t.Errorf("Resolve() over the limit error = %v, want ErrResourceTooLarge", err)
	}
}

func TestKeyringCredentials(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{
		{Key: "broken.example.com", Data: []byte("no-separator")},
	})
	creds := NewKeyringCredentialsFrom(ring)

	if _, _, ok, err := creds.Credentials("unknown.example.com"); ok || err != nil {
		t.Errorf("Credentials(unknown) ok = %v, err = %v, want false, nil", ok, err)
	}
	if _, _, _, err := creds.Credentials("broken.example.com"); err == nil {
		t.Error("Credentials(broken) error = nil, want error")
	}
	if err := creds.Store("example.com", "a:b", "pw"); err == nil {
		t.Error("Store() with ':' in user error = nil, want error")
	}
	if err := creds.Store("example.com", "alice", "pa:ss"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	user, password, ok, err := creds.Credentials("example.com")
	if err != nil || !ok || user != "alice" || password != "pa:ss" {
		t.Errorf("Credentials() = %q, %q, %v, %v", user, password, ok, err)
	}
	hosts, err := creds.Hosts()
	if err != nil {
		t.Fatalf("Hosts() error = %v", err)
	}
	if len(hosts) != 2 {
		t.Errorf("Hosts() = %v, want 2 entries", hosts)
	}
}
