package adapters

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
)

// BlobStore persists vehicle images under a deterministic key so re-uploads
// of the same image index overwrite rather than accumulate:
// <dealershipId>/<vehicleId>/<index>.<ext>
type BlobStore struct {
	fs      afs.Service
	baseURL string // storage root, e.g. file:///var/lib/lotview/images or s3://bucket/images
}

func NewBlobStore(baseURL string) *BlobStore {
	return &BlobStore{fs: afs.New(), baseURL: strings.TrimSuffix(baseURL, "/")}
}

// ImageKey builds the canonical storage key for one vehicle image.
func ImageKey(dealershipID, vehicleID int64, index int, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%d/%d/%d.%s", dealershipID, vehicleID, index, ext)
}

// PutImage stores the encoded image and returns its key.
func (b *BlobStore) PutImage(ctx context.Context, dealershipID, vehicleID int64, index int, ext string, data []byte) (string, error) {
	key := ImageKey(dealershipID, vehicleID, index, ext)
	if err := b.fs.Upload(ctx, b.baseURL+"/"+key, 0644, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("blob upload %s: %w", key, err)
	}
	return key, nil
}

// GetImage fetches a stored image by key.
func (b *BlobStore) GetImage(ctx context.Context, key string) ([]byte, error) {
	return b.fs.DownloadWithURL(ctx, b.baseURL+"/"+key)
}

// DeleteVehicleImages removes every stored image of one vehicle.
func (b *BlobStore) DeleteVehicleImages(ctx context.Context, dealershipID, vehicleID int64) error {
	prefix := fmt.Sprintf("%s/%d/%d", b.baseURL, dealershipID, vehicleID)
	ok, err := b.fs.Exists(ctx, prefix)
	if err != nil || !ok {
		return err
	}
	return b.fs.Delete(ctx, prefix)
}
