package inventory

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ScrapedVehicle is what a VDP (vehicle detail page) parse yields before the
// smart merge against stored inventory.
type ScrapedVehicle struct {
	Year        int
	Make        string
	Model       string
	Trim        string
	Type        string
	Price       int64
	Odometer    int64
	VIN         string
	StockNumber string
	Description string
	Badges      []string
	Images      []string
	CarfaxURL   string
	VDPURL      string
}

var (
	vdpLinkRe = regexp.MustCompile(`href="([^"]*/(?:vehicles|inventory|vdp)/[^"]+)"`)

	jsonLDRe = regexp.MustCompile(`(?s)<script[^>]+type="application/ld\+json"[^>]*>(.*?)</script>`)

	vinRe      = regexp.MustCompile(`(?i)\bVIN\W{0,20}([A-HJ-NPR-Z0-9]{17})\b`)
	stockRe    = regexp.MustCompile(`(?i)\bStock\s*(?:#|No\.?|Number)?\W{0,10}([A-Z0-9-]{2,15})\b`)
	priceRe    = regexp.MustCompile(`(?i)\$\s?([\d,]{4,9})`)
	odometerRe = regexp.MustCompile(`(?i)([\d,]{1,9})\s*(?:km|kms|miles|mi)\b`)
	titleRe    = regexp.MustCompile(`(?i)<title>\s*(?:new|used|pre-owned)?\s*(\d{4})\s+([A-Za-z-]+)\s+([A-Za-z0-9 .-]+?)\s*(?:[|–-]|</title>)`)
	imgRe      = regexp.MustCompile(`(?:src|data-src)="(https?://[^"]+\.(?:jpg|jpeg|png|webp)[^"]*)"`)
	carfaxRe   = regexp.MustCompile(`href="(https?://[^"]*carfax[^"]*)"`)
)

// ExtractVDPLinks pulls vehicle-detail-page URLs out of an inventory listing
// page, resolved against the source URL and deduplicated in page order.
func ExtractVDPLinks(listingHTML, sourceURL string) []string {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var links []string
	for _, g := range vdpLinkRe.FindAllStringSubmatch(listingHTML, -1) {
		ref, err := url.Parse(g[1])
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	}
	return links
}

// ParseVDP extracts a vehicle from a detail page. Structured JSON-LD wins
// when the page carries it; text patterns fill whatever remains.
func ParseVDP(html, vdpURL string) (*ScrapedVehicle, error) {
	v := &ScrapedVehicle{VDPURL: vdpURL}

	for _, g := range jsonLDRe.FindAllStringSubmatch(html, -1) {
		if applyJSONLD(v, []byte(strings.TrimSpace(g[1]))) {
			break
		}
	}
	applyTextPatterns(v, html)

	if v.VIN == "" && (v.Make == "" || v.Model == "") {
		return nil, fmt.Errorf("vdp parse: no vehicle identity in %s", vdpURL)
	}
	return v, nil
}

// jsonLDVehicle mirrors the schema.org Vehicle/Car shape dealer platforms
// embed.
type jsonLDVehicle struct {
	Type        string `json:"@type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	VIN         string `json:"vehicleIdentificationNumber"`
	SKU         string `json:"sku"`
	Image       any    `json:"image"`
	Brand       any    `json:"brand"`
	Model       string `json:"model"`
	BodyType    string `json:"bodyType"`
	ModelDate   any    `json:"vehicleModelDate"`
	Odometer    struct {
		Value any `json:"value"`
	} `json:"mileageFromOdometer"`
	Offers struct {
		Price any `json:"price"`
	} `json:"offers"`
}

func applyJSONLD(v *ScrapedVehicle, raw []byte) bool {
	var lv jsonLDVehicle
	if err := json.Unmarshal(raw, &lv); err != nil {
		return false
	}
	t := strings.ToLower(lv.Type)
	if t != "vehicle" && t != "car" && t != "motorcycle" {
		return false
	}

	v.VIN = strings.ToUpper(lv.VIN)
	v.StockNumber = lv.SKU
	v.Model = lv.Model
	v.Type = lv.BodyType
	v.Description = lv.Description
	v.Year = anyToInt(lv.ModelDate)
	v.Price = int64(anyToInt(lv.Offers.Price))
	v.Odometer = int64(anyToInt(lv.Odometer.Value))

	switch b := lv.Brand.(type) {
	case string:
		v.Make = b
	case map[string]any:
		if n, ok := b["name"].(string); ok {
			v.Make = n
		}
	}
	switch img := lv.Image.(type) {
	case string:
		v.Images = []string{img}
	case []any:
		for _, u := range img {
			if s, ok := u.(string); ok {
				v.Images = append(v.Images, s)
			}
		}
	}
	return true
}

func applyTextPatterns(v *ScrapedVehicle, html string) {
	if v.VIN == "" {
		if g := vinRe.FindStringSubmatch(html); g != nil {
			v.VIN = strings.ToUpper(g[1])
		}
	}
	if v.StockNumber == "" {
		if g := stockRe.FindStringSubmatch(html); g != nil {
			v.StockNumber = g[1]
		}
	}
	if v.Price == 0 {
		if g := priceRe.FindStringSubmatch(html); g != nil {
			v.Price = parseThousands(g[1])
		}
	}
	if v.Odometer == 0 {
		if g := odometerRe.FindStringSubmatch(html); g != nil {
			v.Odometer = parseThousands(g[1])
		}
	}
	if v.Year == 0 || v.Make == "" {
		if g := titleRe.FindStringSubmatch(html); g != nil {
			v.Year, _ = strconv.Atoi(g[1])
			if v.Make == "" {
				v.Make = g[2]
			}
			if v.Model == "" {
				v.Model = strings.TrimSpace(g[3])
			}
		}
	}
	if len(v.Images) == 0 {
		seen := map[string]bool{}
		for _, g := range imgRe.FindAllStringSubmatch(html, -1) {
			if !seen[g[1]] {
				seen[g[1]] = true
				v.Images = append(v.Images, g[1])
			}
		}
	}
	if v.CarfaxURL == "" {
		if g := carfaxRe.FindStringSubmatch(html); g != nil {
			v.CarfaxURL = g[1]
		}
	}
}

func anyToInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(strings.ReplaceAll(t, ",", "")))
		return n
	}
	return 0
}

func parseThousands(s string) int64 {
	n, _ := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	return n
}
