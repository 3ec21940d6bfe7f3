// Package media stores uploaded images and design artwork. Objects live in
// a Supabase Storage bucket, or in a local directory with the sqlite
// driver; both hand back a public URL and the key used to delete them.
package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yohanns/storefront/internal/apperr"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 5 << 20

// Folders group objects by what they are used for.
const (
	FolderUploads       = "yohanns-uploads"
	FolderProfiles      = "yohanns-profiles"
	FolderProducts      = "yohanns-products"
	FolderDesigns       = "yohanns-designs"
	FolderCustomDesigns = "yohanns-custom-designs"
)

var allowedTypes = []string{
	"application/pdf",
	"application/postscript",
	"application/illustrator",
	"application/x-illustrator",
	"image/vnd.adobe.photoshop",
	"application/x-photoshop",
}

// Allowed reports whether contentType may be uploaded: any image, PDF,
// Illustrator or Photoshop file.
func Allowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if strings.HasPrefix(ct, "image/") {
		return true
	}
	for _, t := range allowedTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// Bucket is an object store addressed by slash-separated keys.
type Bucket interface {
	// Put stores r under key and returns its public URL.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// File is one upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Object is a stored upload.
type Object struct {
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	PublicID   string    `json:"publicId"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Service validates uploads and writes them to a bucket.
type Service struct {
	bucket Bucket
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates a media service over bucket.
func NewService(bucket Bucket, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{bucket: bucket, log: log, now: time.Now}
}

func check(f File) error {
	if f.Size > MaxFileSize {
		return apperr.Invalid("File too large").With("maxBytes", MaxFileSize)
	}
	if !Allowed(f.ContentType) {
		return apperr.Invalid("Only image files, PDF, AI, and PSD files are allowed!")
	}
	return nil
}

func objectKey(folder, name string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	if len(ext) > 8 {
		ext = ""
	}
	return folder + "/" + uuid.NewString() + ext
}

// Upload stores f in folder under a fresh key.
func (s *Service) Upload(ctx context.Context, folder string, f File) (*Object, error) {
	if err := check(f); err != nil {
		return nil, err
	}
	key := objectKey(folder, f.Name)
	url, err := s.bucket.Put(ctx, key, f.ContentType, io.LimitReader(f.Body, MaxFileSize+1))
	if err != nil {
		return nil, apperr.Internal(err, "Failed to upload file")
	}
	s.log.Debug("object stored", zap.String("key", key), zap.Int64("bytes", f.Size))
	return &Object{Filename: f.Name, URL: url, PublicID: key, UploadedAt: s.now().UTC()}, nil
}

// UploadAll stores files concurrently, preserving their order. Nothing is
// written unless every file passes validation; objects stored before a
// failure are removed.
func (s *Service) UploadAll(ctx context.Context, folder string, files []File) ([]Object, error) {
	for _, f := range files {
		if err := check(f); err != nil {
			return nil, err
		}
	}
	out := make([]Object, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			obj, err := s.Upload(gctx, folder, f)
			if err != nil {
				return err
			}
			out[i] = *obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, o := range out {
			if o.PublicID == "" {
				continue
			}
			if derr := s.bucket.Delete(context.WithoutCancel(ctx), o.PublicID); derr != nil {
				s.log.Warn("failed to remove partial upload", zap.String("key", o.PublicID), zap.Error(derr))
			}
		}
		return nil, err
	}
	return out, nil
}

// Delete removes the object with publicID.
func (s *Service) Delete(ctx context.Context, publicID string) error {
	if !validKey(publicID) {
		return apperr.Invalid("Invalid public id")
	}
	if err := s.bucket.Delete(ctx, publicID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return err
		}
		return apperr.Internal(err, "Failed to delete image")
	}
	s.log.Info("object deleted", zap.String("key", publicID))
	return nil
}

// validKey rejects empty keys and keys that climb out of the bucket.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

func keyError(key string) error {
	return fmt.Errorf("invalid object key %q", key)
}
