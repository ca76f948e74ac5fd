package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

// MaxImportBatch caps one bulk-import call.
const MaxImportBatch = 100

// ImportVehicle is one record of a bulk-import payload.
type ImportVehicle struct {
	VIN         string   `json:"vin"`
	Year        int      `json:"year"`
	Make        string   `json:"make"`
	Model       string   `json:"model"`
	Trim        string   `json:"trim"`
	Type        string   `json:"type"`
	Price       int64    `json:"price"`
	Odometer    int64    `json:"odometer"`
	StockNumber string   `json:"stockNumber"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Badges      []string `json:"badges"`
}

// ImportItemError pins a failure to its payload index.
type ImportItemError struct {
	Index int    `json:"index"`
	VIN   string `json:"vin,omitempty"`
	Error string `json:"error"`
}

// ImportResult is the bulk-import response body.
type ImportResult struct {
	Imported int               `json:"imported"`
	Updated  int               `json:"updated"`
	Failed   int               `json:"failed"`
	Errors   []ImportItemError `json:"errors,omitempty"`
}

var ErrBatchTooLarge = fmt.Errorf("inventory: import batch exceeds %d records", MaxImportBatch)

// Importer handles the external bulk-import and delete-subtract sync APIs.
type Importer struct {
	vehicles store.VehicleStore
}

func NewImporter(vehicles store.VehicleStore) *Importer {
	return &Importer{vehicles: vehicles}
}

// Import upserts up to MaxImportBatch records. One bad record never aborts
// the batch; its error is collected and the rest proceed.
func (im *Importer) Import(ctx context.Context, dealershipID int64, records []ImportVehicle, updateExisting bool) (*ImportResult, error) {
	if len(records) == 0 {
		return nil, store.ErrInvalid
	}
	if len(records) > MaxImportBatch {
		return nil, ErrBatchTooLarge
	}

	res := &ImportResult{}
	for i, rec := range records {
		if err := im.importOne(ctx, dealershipID, &rec, updateExisting, res); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, ImportItemError{Index: i, VIN: rec.VIN, Error: err.Error()})
		}
	}
	return res, nil
}

func (im *Importer) importOne(ctx context.Context, dealershipID int64, rec *ImportVehicle, updateExisting bool, res *ImportResult) error {
	vin := strings.ToUpper(strings.TrimSpace(rec.VIN))
	if !ValidVIN(vin) {
		return fmt.Errorf("invalid vin %q", rec.VIN)
	}
	if rec.Make == "" || rec.Model == "" {
		return errors.New("make and model are required")
	}
	if rec.Year < 1900 || rec.Year > time.Now().Year()+1 {
		return fmt.Errorf("implausible year %d", rec.Year)
	}

	if updateExisting {
		if existing, err := im.vehicles.GetByVIN(ctx, vin, dealershipID); err == nil {
			applyImport(existing, rec, vin)
			if err := im.vehicles.Update(ctx, existing); err != nil {
				return err
			}
			res.Updated++
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	v := &store.Vehicle{DealershipID: dealershipID}
	applyImport(v, rec, vin)
	if err := im.vehicles.Create(ctx, v); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return fmt.Errorf("vin %s already exists", vin)
		}
		return err
	}
	res.Imported++
	return nil
}

func applyImport(v *store.Vehicle, rec *ImportVehicle, vin string) {
	v.VIN = vin
	v.Year = rec.Year
	v.Make = rec.Make
	v.Model = rec.Model
	v.Trim = rec.Trim
	v.Type = rec.Type
	v.Price = rec.Price
	v.Odometer = rec.Odometer
	v.StockNumber = rec.StockNumber
	v.Location = rec.Location
	if !v.IsManuallyEdited {
		v.Description = rec.Description
	}
	if len(rec.Images) > 0 {
		v.Images = rec.Images
	}
	if len(rec.Badges) > 0 {
		v.Badges = rec.Badges
	}
}

// SyncResult is the delete-subtract response body.
type SyncResult struct {
	DryRun       bool     `json:"dryRun"`
	WouldDelete  int      `json:"wouldDelete,omitempty"`
	DeletedCount int      `json:"deletedCount"`
	DeletedVINs  []string `json:"deletedVins,omitempty"`
	Total        int      `json:"total"`
}

// ErrConfirmRequired is returned when a sync would remove more than half the
// inventory without the confirmDelete flag.
var ErrConfirmRequired = errors.New("inventory: sync would delete more than half the inventory; set confirmDelete to proceed")

// Sync removes every vehicle whose VIN is absent from keep. An empty keep
// set is refused unconditionally, and deleting more than half the inventory
// requires explicit confirmation.
func (im *Importer) Sync(ctx context.Context, dealershipID int64, keep []string, dryRun, confirmDelete bool) (*SyncResult, error) {
	if len(keep) == 0 {
		return nil, store.ErrInvalid
	}

	total, err := im.vehicles.Count(ctx, dealershipID)
	if err != nil {
		return nil, err
	}

	if dryRun {
		vins, err := im.vehicles.VINsNotIn(ctx, keep, dealershipID)
		if err != nil {
			return nil, err
		}
		return &SyncResult{DryRun: true, WouldDelete: len(vins), DeletedVINs: vins, Total: total}, nil
	}

	vins, err := im.vehicles.VINsNotIn(ctx, keep, dealershipID)
	if err != nil {
		return nil, err
	}
	if total > 0 && len(vins)*2 > total && !confirmDelete {
		return nil, ErrConfirmRequired
	}

	deleted, err := im.vehicles.DeleteByVINNotIn(ctx, keep, dealershipID)
	if err != nil {
		return nil, err
	}
	return &SyncResult{
		DeletedCount: deleted.DeletedCount,
		DeletedVINs:  deleted.DeletedVINs,
		Total:        total - deleted.DeletedCount,
	}, nil
}
