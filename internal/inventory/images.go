package inventory

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/openautogroup/lotview/internal/adapters"
	"github.com/openautogroup/lotview/internal/store"
)

// maxImageWidth bounds stored images; marketplace uploads reject nothing
// above this and it keeps blob costs predictable.
const maxImageWidth = 1600

// ImagePersister downloads scraped image URLs, normalizes them and stores
// them under deterministic blob keys.
type ImagePersister struct {
	fetch  *adapters.Client
	blob   *adapters.BlobStore
	logger *slog.Logger
}

func NewImagePersister(fetch *adapters.Client, blob *adapters.BlobStore, logger *slog.Logger) *ImagePersister {
	return &ImagePersister{fetch: fetch, blob: blob, logger: logger}
}

// Persist downloads each of the vehicle's external images into the blob
// store and fills LocalImages. A failed download or upload downgrades that
// slot to its external URL; the external list is never shortened.
func (p *ImagePersister) Persist(ctx context.Context, v *store.Vehicle) {
	if len(v.Images) == 0 {
		return
	}
	local := make([]string, 0, len(v.Images))
	for i, src := range v.Images {
		key, err := p.persistOne(ctx, v, i, src)
		if err != nil {
			p.logger.Warn("image persist failed, keeping external url",
				"vehicle", v.ID, "index", i, "error", err)
			local = append(local, src)
			continue
		}
		local = append(local, key)
	}
	v.LocalImages = local
}

func (p *ImagePersister) persistOne(ctx context.Context, v *store.Vehicle, index int, src string) (string, error) {
	raw, err := p.fetch.Do(ctx, &adapters.Request{Method: http.MethodGet, URL: src, DealershipID: &v.DealershipID})
	if err != nil {
		return "", err
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}
	if img.Bounds().Dx() > maxImageWidth {
		img = imaging.Resize(img, maxImageWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", err
	}

	// Everything is re-encoded, so the stored extension is always jpg.
	return p.blob.PutImage(ctx, v.DealershipID, v.ID, index, "jpg", buf.Bytes())
}
