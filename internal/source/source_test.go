package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koustreak/askdb/internal/errs"
	"github.com/koustreak/askdb/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const script = "CREATE TABLE t (n INTEGER);\nINSERT INTO t VALUES (1);\n"

type memObject struct {
	io.Reader
	info *filestore.ObjectInfo
}

func (o *memObject) Close() error                { return nil }
func (o *memObject) Info() *filestore.ObjectInfo { return o.info }

// memStore serves objects from a map keyed by "bucket/key".
type memStore struct {
	objects map[string]string
}

func (s *memStore) Close() error { return nil }

func (s *memStore) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key")
	}
	return &filestore.ObjectInfo{Key: key, Size: int64(len(body))}, nil
}

func (s *memStore) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	info, err := s.StatObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return &memObject{Reader: strings.NewReader(s.objects[bucket+"/"+key]), info: info}, nil
}

func TestIsScript(t *testing.T) {
	assert.True(t, IsScript("https://example.com/chinook.sql"))
	assert.True(t, IsScript("s3://fixtures/chinook"))
	assert.True(t, IsScript("./Chinook.SQL"))
	assert.False(t, IsScript("Chinook.db"))
	assert.False(t, IsScript("postgres://localhost/chinook"))
}

func TestLoad_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chinook.sql" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, script)
	}))
	defer srv.Close()

	l := &Loader{HTTP: srv.Client()}

	got, err := l.Load(context.Background(), srv.URL+"/chinook.sql")
	require.NoError(t, err)
	assert.Equal(t, script, got)

	_, err = l.Load(context.Background(), srv.URL+"/missing.sql")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestLoad_HTTPTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	l := &Loader{HTTP: srv.Client(), MaxBytes: 10}
	_, err := l.Load(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.sql")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o600))

	var l Loader
	got, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, script, got)

	_, err = l.Load(context.Background(), filepath.Join(t.TempDir(), "nope.sql"))
	assert.True(t, errs.IsNotFound(err))
}

func TestLoad_Object(t *testing.T) {
	l := &Loader{Store: &memStore{objects: map[string]string{"fixtures/sql/chinook.sql": script}}}

	got, err := l.Load(context.Background(), "s3://fixtures/sql/chinook.sql")
	require.NoError(t, err)
	assert.Equal(t, script, got)

	_, err = l.Load(context.Background(), "s3://fixtures/other.sql")
	assert.True(t, errs.IsNotFound(err))

	_, err = l.Load(context.Background(), "s3://fixtures")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoad_ObjectWithoutStore(t *testing.T) {
	var l Loader
	_, err := l.Load(context.Background(), "s3://fixtures/chinook.sql")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoad_UnsupportedScheme(t *testing.T) {
	var l Loader
	_, err := l.Load(context.Background(), "ftp://example.com/chinook.sql")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}
