// Package storage keeps shift photo evidence out of band. The ledger only
// stores the returned reference.
package storage

import (
	"context"
	"errors"
	"fmt"
	"guardpost/models"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go"
	"github.com/google/uuid"
)

// MaxPhotoBytes caps a single upload.
const MaxPhotoBytes = 10 << 20

var (
	ErrUnsupportedType = errors.New("unsupported photo type")
	ErrTooLarge        = fmt.Errorf("photo exceeds %d bytes", MaxPhotoBytes)
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Upload describes one photo to store.
type Upload struct {
	GuardID     string
	ShiftID     string
	Slot        models.PhotoSlot
	ContentType string
	Body        io.Reader
}

// PhotoStore persists photo bytes and returns a reference to them.
type PhotoStore interface {
	Put(ctx context.Context, u Upload) (*models.PhotoRef, error)
}

func objectName(u Upload) (id, name string, err error) {
	ext, ok := allowedTypes[strings.ToLower(u.ContentType)]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, u.ContentType)
	}
	id = uuid.NewString()
	return id, path.Join("shifts", u.GuardID, u.ShiftID, string(u.Slot)+"-"+id+ext), nil
}

// GCSPhotoStore writes photos to a Cloud Storage bucket.
type GCSPhotoStore struct {
	bucket *gcs.BucketHandle
}

// NewGCSPhotoStore opens the Firebase app's bucket; an empty name selects the
// bucket configured on the app.
func NewGCSPhotoStore(ctx context.Context, app *firebase.App, bucketName string) (*GCSPhotoStore, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing storage client: %w", err)
	}
	var bucket *gcs.BucketHandle
	if bucketName == "" {
		bucket, err = client.DefaultBucket()
	} else {
		bucket, err = client.Bucket(bucketName)
	}
	if err != nil {
		return nil, fmt.Errorf("error opening bucket: %w", err)
	}
	return &GCSPhotoStore{bucket: bucket}, nil
}

// Put implements PhotoStore.
func (s *GCSPhotoStore) Put(ctx context.Context, u Upload) (*models.PhotoRef, error) {
	id, name, err := objectName(u)
	if err != nil {
		return nil, err
	}

	// Cancelling the writer's context aborts the upload without creating the object.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = u.ContentType
	size, err := io.Copy(w, io.LimitReader(u.Body, MaxPhotoBytes+1))
	if err != nil {
		cancel()
		w.Close()
		return nil, fmt.Errorf("failed to upload photo: %w", err)
	}
	if size > MaxPhotoBytes {
		cancel()
		w.Close()
		return nil, ErrTooLarge
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize photo upload: %w", err)
	}

	return &models.PhotoRef{
		Path:       name,
		ID:         id,
		Size:       size,
		MimeType:   u.ContentType,
		Type:       string(u.Slot),
		UploadedAt: time.Now().UTC(),
	}, nil
}

// DiskPhotoStore writes photos under a local directory, for the memory driver.
type DiskPhotoStore struct {
	root string
}

// NewDiskPhotoStore creates root if needed.
func NewDiskPhotoStore(root string) (*DiskPhotoStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return &DiskPhotoStore{root: root}, nil
}

// Put implements PhotoStore.
func (s *DiskPhotoStore) Put(_ context.Context, u Upload) (*models.PhotoRef, error) {
	id, name, err := objectName(u)
	if err != nil {
		return nil, err
	}

	full := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("failed to create photo file: %w", err)
	}
	size, err := io.Copy(f, io.LimitReader(u.Body, MaxPhotoBytes+1))
	closeErr := f.Close()
	if err == nil && size > MaxPhotoBytes {
		err = ErrTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(full)
		return nil, err
	}

	return &models.PhotoRef{
		Path:       name,
		ID:         id,
		Size:       size,
		MimeType:   u.ContentType,
		Type:       string(u.Slot),
		UploadedAt: time.Now().UTC(),
	}, nil
}
