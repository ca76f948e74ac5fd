package inventory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/openautogroup/lotview/internal/adapters"
)

// VINDetails is the decoded identity of a vehicle.
type VINDetails struct {
	Year  int    `json:"year,omitempty"`
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Trim  string `json:"trim,omitempty"`
	Type  string `json:"type,omitempty"`
}

func (d *VINDetails) complete() bool {
	return d.Year > 0 && d.Make != "" && d.Model != "" && d.Trim != ""
}

// VINDecoder resolves VINs through MarketCheck, with the free NHTSA vPIC
// API filling whatever fields MarketCheck leaves blank. MarketCheck is
// authoritative: NHTSA never overwrites a field it populated.
type VINDecoder struct {
	client            *adapters.Client
	MarketCheckAPIKey string
	MarketCheckURL    string
	NHTSAURL          string
}

const (
	defaultMarketCheckURL = "https://mc-api.marketcheck.com/v2"
	defaultNHTSAURL       = "https://vpic.nhtsa.dot.gov/api/vehicles"
)

func NewVINDecoder(client *adapters.Client, marketCheckKey string) *VINDecoder {
	return &VINDecoder{
		client:            client,
		MarketCheckAPIKey: marketCheckKey,
		MarketCheckURL:    defaultMarketCheckURL,
		NHTSAURL:          defaultNHTSAURL,
	}
}

// Decode resolves a VIN. An error is returned only when both sources fail;
// partial data from either source is a success.
func (d *VINDecoder) Decode(ctx context.Context, vin string) (*VINDetails, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if !ValidVIN(vin) {
		return nil, fmt.Errorf("inventory: invalid vin %q", vin)
	}

	out := &VINDetails{}
	mcErr := d.decodeMarketCheck(ctx, vin, out)
	if out.complete() {
		return out, nil
	}
	nhErr := d.decodeNHTSA(ctx, vin, out)
	if mcErr != nil && nhErr != nil {
		return nil, fmt.Errorf("vin decode: marketcheck: %v; nhtsa: %w", mcErr, nhErr)
	}
	return out, nil
}

func (d *VINDecoder) decodeMarketCheck(ctx context.Context, vin string, out *VINDetails) error {
	if d.MarketCheckAPIKey == "" {
		return fmt.Errorf("no marketcheck key")
	}
	var res struct {
		Year     int    `json:"year"`
		Make     string `json:"make"`
		Model    string `json:"model"`
		Trim     string `json:"trim"`
		BodyType string `json:"body_type"`
	}
	u := fmt.Sprintf("%s/decode/car/%s/specs?api_key=%s", d.MarketCheckURL, vin, url.QueryEscape(d.MarketCheckAPIKey))
	if err := d.client.DoJSON(ctx, http.MethodGet, u, nil, nil, nil, &res); err != nil {
		return err
	}
	out.Year = res.Year
	out.Make = res.Make
	out.Model = res.Model
	out.Trim = res.Trim
	out.Type = res.BodyType
	return nil
}

func (d *VINDecoder) decodeNHTSA(ctx context.Context, vin string, out *VINDetails) error {
	var res struct {
		Results []struct {
			Variable string `json:"Variable"`
			Value    string `json:"Value"`
		} `json:"Results"`
	}
	u := fmt.Sprintf("%s/DecodeVin/%s?format=json", d.NHTSAURL, vin)
	if err := d.client.DoJSON(ctx, http.MethodGet, u, nil, nil, nil, &res); err != nil {
		return err
	}
	for _, r := range res.Results {
		if r.Value == "" || r.Value == "Not Applicable" {
			continue
		}
		switch r.Variable {
		case "Model Year":
			if out.Year == 0 {
				out.Year, _ = strconv.Atoi(r.Value)
			}
		case "Make":
			if out.Make == "" {
				out.Make = r.Value
			}
		case "Model":
			if out.Model == "" {
				out.Model = r.Value
			}
		case "Trim":
			if out.Trim == "" {
				out.Trim = r.Value
			}
		case "Body Class":
			if out.Type == "" {
				out.Type = r.Value
			}
		}
	}
	return nil
}
