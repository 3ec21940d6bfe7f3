package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"github.com/yohanns/storefront/internal/apperr"
)

// SupabaseBucket stores objects in a Supabase Storage bucket.
type SupabaseBucket struct {
	client *storage.Client
	bucket string
}

// NewSupabaseBucket uses the named bucket through client. The bucket must
// be public for the returned URLs to resolve.
func NewSupabaseBucket(client *storage.Client, bucket string) *SupabaseBucket {
	return &SupabaseBucket{client: client, bucket: bucket}
}

// Put uploads r, overwriting any object at key.
func (b *SupabaseBucket) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	upsert := true
	if _, err := b.client.UploadFile(b.bucket, key, r, storage.FileOptions{ContentType: &contentType, Upsert: &upsert}); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", b.bucket, key, err)
	}
	return b.client.GetPublicUrl(b.bucket, key).SignedURL, nil
}

// Delete removes the object at key.
func (b *SupabaseBucket) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed, err := b.client.RemoveFile(b.bucket, []string{key})
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", b.bucket, key, err)
	}
	if len(removed) == 0 {
		return apperr.NotFound("File", key)
	}
	return nil
}

// DirBucket stores objects as files under a directory and serves them
// below a URL prefix.
type DirBucket struct {
	root   string
	prefix string
}

// NewDirBucket creates root if needed. prefix is the URL path the files are
// served under, e.g. /media.
func NewDirBucket(root, prefix string) (*DirBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DirBucket{root: root, prefix: strings.TrimRight(prefix, "/")}, nil
}

func (b *DirBucket) path(key string) (string, error) {
	if !validKey(key) {
		return "", keyError(key)
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

// Put writes r to the file for key.
func (b *DirBucket) Put(ctx context.Context, key, _ string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := b.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return b.prefix + "/" + key, nil
}

// Delete removes the file for key.
func (b *DirBucket) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.NotFound("File", key)
		}
		return err
	}
	return nil
}

// Prefix is the URL path the bucket is served under.
func (b *DirBucket) Prefix() string { return b.prefix }

// Handler serves stored files below Prefix.
func (b *DirBucket) Handler() http.Handler {
	return http.StripPrefix(b.prefix, http.FileServer(http.Dir(b.root)))
}
