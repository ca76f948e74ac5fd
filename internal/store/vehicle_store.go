package store

import (
	"context"
	"time"
)

// Vehicle is a unit of inventory. External image URLs live in Images;
// LocalImages holds blob-service paths and, when non-empty, is what external
// consumers receive in place of Images.
type Vehicle struct {
	ID           int64    `json:"id"`
	DealershipID int64    `json:"dealershipId"`
	Year         int      `json:"year"`
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Trim         string   `json:"trim,omitempty"`
	Type         string   `json:"type,omitempty"`
	Price        int64    `json:"price"`
	Odometer     int64    `json:"odometer"`
	VIN          string   `json:"vin,omitempty"`
	StockNumber  string   `json:"stockNumber,omitempty"`
	Location     string   `json:"location,omitempty"`
	Description  string   `json:"description,omitempty"`
	Badges       []string `json:"badges,omitempty"`

	Images      []string `json:"images"`
	LocalImages []string `json:"localImages,omitempty"`

	CarfaxURL    string `json:"carfaxUrl,omitempty"`
	DealerVDPURL string `json:"dealerVdpUrl,omitempty"`

	// Manual overrides survive scrape refreshes when IsManuallyEdited is set.
	ManualHeadline    string `json:"manualHeadline,omitempty"`
	ManualSubheadline string `json:"manualSubheadline,omitempty"`
	ManualDescription string `json:"manualDescription,omitempty"`
	IsManuallyEdited  bool   `json:"isManuallyEdited"`

	SocialTemplates     string     `json:"socialTemplates,omitempty"`
	LastScrapedAt       *time.Time `json:"lastScrapedAt,omitempty"`
	MarketplacePostedAt *time.Time `json:"marketplacePostedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// DisplayImages returns local blob paths when present, external URLs otherwise.
func (v *Vehicle) DisplayImages() []string {
	if len(v.LocalImages) > 0 {
		return v.LocalImages
	}
	return v.Images
}

// VehicleList is a paged listing result.
type VehicleList struct {
	Items []Vehicle `json:"items"`
	Total int       `json:"total"`
}

// VehicleListOpts controls listing. When Page > 0 the limit is capped at 100;
// otherwise up to 10000 rows are returned.
type VehicleListOpts struct {
	Page   int
	Limit  int
	Search string
}

// BulkDeleteResult reports the outcome of a delete-subtract sync.
type BulkDeleteResult struct {
	DeletedCount int      `json:"deletedCount"`
	DeletedVINs  []string `json:"deletedVins"`
}

// VehicleStore persists inventory.
type VehicleStore interface {
	Create(ctx context.Context, v *Vehicle) error
	Get(ctx context.Context, id, dealershipID int64) (*Vehicle, error)
	GetByVIN(ctx context.Context, vin string, dealershipID int64) (*Vehicle, error)
	List(ctx context.Context, dealershipID int64, opts VehicleListOpts) (*VehicleList, error)
	Count(ctx context.Context, dealershipID int64) (int, error)
	Update(ctx context.Context, v *Vehicle) error
	Delete(ctx context.Context, id, dealershipID int64) error
	DeleteByVIN(ctx context.Context, vin string, dealershipID int64) error

	// VINsNotIn returns the VINs of the dealership's vehicles whose VIN is
	// absent from keep. Used for dry-run previews.
	VINsNotIn(ctx context.Context, keep []string, dealershipID int64) ([]string, error)

	// DeleteByVINNotIn removes every vehicle of the dealership whose VIN is
	// not in keep. Refuses an empty keep set with ErrInvalid: the safety gate
	// is enforced here as well as at the API layer.
	DeleteByVINNotIn(ctx context.Context, keep []string, dealershipID int64) (*BulkDeleteResult, error)
}
