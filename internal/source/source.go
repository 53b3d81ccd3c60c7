// Package source resolves a SQL script location to its text. Locations are
// http(s) URLs, s3://bucket/key objects, or local file paths.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/koustreak/askdb/internal/errs"
	"github.com/koustreak/askdb/internal/filestore"
)

// DefaultMaxBytes caps a script download. The Chinook script is about 1 MiB.
const DefaultMaxBytes = 64 << 20

// Loader fetches SQL scripts. The zero value can load local files and
// http(s) URLs with a default client.
type Loader struct {
	// HTTP is the client used for http(s) locations. Nil uses a client
	// with a 60s timeout.
	HTTP *http.Client

	// Store serves s3:// locations. Nil makes them an error.
	Store filestore.Store

	// MaxBytes caps the script size. 0 means DefaultMaxBytes.
	MaxBytes int64
}

// IsScript reports whether location names a SQL script rather than a
// database.
func IsScript(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "s3://") ||
		strings.HasSuffix(lower, ".sql")
}

// Load returns the script text at location.
func (l *Loader) Load(ctx context.Context, location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Not a URL, or a Windows drive letter: treat as a path.
		return l.loadFile(location)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return l.loadHTTP(ctx, location)
	case "s3":
		return l.loadObject(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "file":
		return l.loadFile(u.Path)
	default:
		return "", errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unsupported script location scheme %q", u.Scheme))
	}
}

func (l *Loader) maxBytes() int64 {
	if l.MaxBytes > 0 {
		return l.MaxBytes
	}
	return DefaultMaxBytes
}

func (l *Loader) loadHTTP(ctx context.Context, location string) (string, error) {
	client := l.HTTP
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid script URL", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errs.Wrap(errs.ErrKindTimeout, "script download cancelled", err)
		}
		return "", errs.Wrap(errs.ErrKindConnectionFailed, "failed to download script", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", errs.New(errs.ErrKindNotFound, "script not found: "+location)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", errs.New(errs.ErrKindPermissionDenied, "script download refused: "+resp.Status)
	case resp.StatusCode >= 300:
		return "", errs.New(errs.ErrKindConnectionFailed, "script download failed: "+resp.Status)
	}

	return l.read(resp.Body)
}

func (l *Loader) loadObject(ctx context.Context, bucket, key string) (string, error) {
	if l.Store == nil {
		return "", errs.New(errs.ErrKindInvalidInput, "s3 locations need an object store endpoint in the filestore config")
	}
	if bucket == "" || key == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "s3 location must be s3://bucket/key")
	}

	info, err := l.Store.StatObject(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	if info.Size > l.maxBytes() {
		return "", errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("script %s is %d bytes, limit is %d", key, info.Size, l.maxBytes()))
	}

	obj, err := l.Store.GetObject(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	defer func() { _ = obj.Close() }()

	return l.read(obj)
}

func (l *Loader) loadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.Wrap(errs.ErrKindNotFound, "script not found: "+path, err)
		}
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to open script", err)
	}
	defer func() { _ = f.Close() }()

	return l.read(f)
}

// read drains r, failing when it holds more than MaxBytes.
func (l *Loader) read(r io.Reader) (string, error) {
	limit := l.maxBytes()
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errs.Wrap(errs.ErrKindConnectionFailed, "failed to read script", err)
	}
	if int64(len(data)) > limit {
		return "", errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("script exceeds %d bytes", limit))
	}
	return string(data), nil
}
