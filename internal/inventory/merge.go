package inventory

import (
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

const vinLength = 17

// ValidVIN reports whether s is a plausible 17-character VIN. I, O and Q are
// excluded from the VIN alphabet.
func ValidVIN(s string) bool {
	if len(s) != vinLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z' && r != 'I' && r != 'O' && r != 'Q':
		default:
			return false
		}
	}
	return true
}

// Merge applies a fresh scrape onto a stored vehicle. A scraped field only
// replaces the stored one when it is non-empty and passes validation, and
// manual edits survive: when IsManuallyEdited is set the scrape refreshes
// price, odometer, images and badges but never the description fields.
func Merge(dst *store.Vehicle, src *ScrapedVehicle, now time.Time) {
	if src.Price > 0 {
		dst.Price = src.Price
	}
	if src.Odometer > 0 {
		dst.Odometer = src.Odometer
	}
	if len(src.Images) > 0 {
		dst.Images = src.Images
	}
	if len(src.Badges) > 0 {
		dst.Badges = src.Badges
	}
	if src.Year > 0 {
		dst.Year = src.Year
	}
	if src.Make != "" {
		dst.Make = src.Make
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Trim != "" {
		dst.Trim = src.Trim
	}
	if src.Type != "" {
		dst.Type = src.Type
	}
	if ValidVIN(src.VIN) {
		dst.VIN = src.VIN
	}
	if src.StockNumber != "" {
		dst.StockNumber = src.StockNumber
	}
	if src.CarfaxURL != "" {
		dst.CarfaxURL = src.CarfaxURL
	}
	if src.VDPURL != "" {
		dst.DealerVDPURL = src.VDPURL
	}
	if src.Description != "" && !dst.IsManuallyEdited {
		dst.Description = src.Description
	}

	t := now
	dst.LastScrapedAt = &t
}
