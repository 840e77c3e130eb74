package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"time"
)

// DefaultMaxRemoteSize caps the body read from an http(s) resource.
const DefaultMaxRemoteSize = 32 << 20

// ErrResourceTooLarge is returned when a remote body exceeds the size limit.
var ErrResourceTooLarge = errors.New("resource too large")

// Standard is the default resolution every installed resolver falls back to:
// file: URIs and bare paths are read from disk, http and https URIs are fetched.
// Other schemes are declined.
type Standard struct {
	// Client is used for remote fetches. nil means a client with a 30s timeout.
	Client *http.Client
	// Credentials, when set, supplies basic-auth credentials per host.
	Credentials CredentialStore
	// MaxSize caps remote bodies in bytes. Zero means DefaultMaxRemoteSize.
	MaxSize int64
}

// NewStandard returns a standard resolver without credentials.
func NewStandard() *Standard {
	return &Standard{}
}

// Resolve implements Resolver.
func (s *Standard) Resolve(ctx context.Context, req Request) (*Resource, error) {
	abs, err := req.Absolute()
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(abs)
	if err != nil {
		return nil, fmt.Errorf("invalid URI %q: %w", abs, err)
	}
	switch u.Scheme {
	case "file", "":
		return s.readFile(abs)
	case "http", "https":
		return s.fetch(ctx, u)
	}
	return nil, nil
}

func (s *Standard) readFile(uri string) (*Resource, error) {
	p, ok := LocalPath(uri)
	if !ok {
		return nil, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return &Resource{URI: uri, ContentType: ContentTypeFor(uri), Content: data}, nil
}

func (s *Standard) fetch(ctx context.Context, u *url.URL) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", u, err)
	}
	if s.Credentials != nil {
		user, password, ok, err := s.Credentials.Credentials(u.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to look up credentials for %s: %w", u.Host, err)
		}
		if ok {
			req.SetBasicAuth(user, password)
		}
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: %s", u, resp.Status)
	}
	limit := s.MaxSize
	if limit <= 0 {
		limit = DefaultMaxRemoteSize
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", u, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrResourceTooLarge, u, limit)
	}

	contentType := ContentTypeFor(u.String())
	if h := resp.Header.Get("Content-Type"); h != "" {
		if mt, _, err := mime.ParseMediaType(h); err == nil {
			contentType = mt
		}
	}
	return &Resource{URI: u.String(), ContentType: contentType, Content: data}, nil
}
