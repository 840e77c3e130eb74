package resolve

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// FileURI returns the file: URI for a local path, made absolute first.
func FileURI(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to make %s absolute: %w", p, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}

// DirURI is FileURI for a directory: the result always ends in a slash so that
// relative references resolve inside it.
func DirURI(dir string) (string, error) {
	u, err := FileURI(dir)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u, nil
}

// Absolute resolves ref against base. A bare path with no base is taken relative
// to the working directory.
func Absolute(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URI %q: %w", ref, err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	if base == "" {
		if filepath.IsAbs(ref) || !strings.Contains(ref, ":") {
			return FileURI(ref)
		}
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URI %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}

// LocalPath returns the filesystem path of a file: URI or bare path.
func LocalPath(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "file":
		return filepath.FromSlash(u.Path), true
	case "":
		return filepath.FromSlash(u.Path), true
	}
	return "", false
}

// ContentTypeFor guesses a media type from a URI's extension.
func ContentTypeFor(uri string) string {
	u, err := url.Parse(uri)
	p := uri
	if err == nil {
		p = u.Path
	}
	switch ext := strings.ToLower(path.Ext(p)); ext {
	case ".xml", ".xsd", ".tpl", ".xsl", ".xslt":
		return "application/xml"
	case ".html", ".htm":
		return "text/html"
	case ".txt":
		return "text/plain"
	case "":
		return "application/octet-stream"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			if mt, _, err := mime.ParseMediaType(t); err == nil {
				return mt
			}
			return t
		}
		return "application/octet-stream"
	}
}
