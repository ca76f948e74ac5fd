package inventory

import "testing"

func TestExtractVDPLinks(t *testing.T) {
	listing := `
		<a href="/vehicles/2021-toyota-rav4-123">RAV4</a>
		<a href="/vehicles/2021-toyota-rav4-123">RAV4 again</a>
		<a href="https://dealer.test/inventory/2019-honda-civic">Civic</a>
		<a href="/about-us">About</a>
	`
	links := ExtractVDPLinks(listing, "https://dealer.test/inventory")
	want := []string{
		"https://dealer.test/vehicles/2021-toyota-rav4-123",
		"https://dealer.test/inventory/2019-honda-civic",
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links %v, want %d", len(links), links, len(want))
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q, want %q", i, links[i], want[i])
		}
	}
}

func TestParseVDP_JSONLD(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">
		{
			"@type": "Vehicle",
			"name": "2021 Toyota RAV4 XLE",
			"vehicleIdentificationNumber": "2t3h1rfv8mc123456",
			"sku": "T12345",
			"brand": {"name": "Toyota"},
			"model": "RAV4",
			"bodyType": "SUV",
			"vehicleModelDate": "2021",
			"mileageFromOdometer": {"value": 41250},
			"offers": {"price": "31,995"},
			"image": ["https://cdn.dealer.test/1.jpg", "https://cdn.dealer.test/2.jpg"],
			"description": "Clean local SUV"
		}
		</script>
	</head><body></body></html>`

	v, err := ParseVDP(html, "https://dealer.test/vehicles/rav4")
	if err != nil {
		t.Fatal(err)
	}
	if v.VIN != "2T3H1RFV8MC123456" {
		t.Errorf("VIN = %q, want uppercased", v.VIN)
	}
	if v.Make != "Toyota" || v.Model != "RAV4" || v.Year != 2021 {
		t.Errorf("identity = %d %s %s", v.Year, v.Make, v.Model)
	}
	if v.Price != 31995 {
		t.Errorf("Price = %d, want 31995", v.Price)
	}
	if v.Odometer != 41250 {
		t.Errorf("Odometer = %d, want 41250", v.Odometer)
	}
	if v.StockNumber != "T12345" || v.Type != "SUV" {
		t.Errorf("stock/type = %q/%q", v.StockNumber, v.Type)
	}
	if len(v.Images) != 2 {
		t.Errorf("Images = %v, want 2", v.Images)
	}
}

func TestParseVDP_TextPatterns(t *testing.T) {
	html := `<html>
		<title>Used 2019 Honda Civic LX | Dealer</title>
		<body>
			<p>VIN: 2HGFC2F59KH000001</p>
			<p>Stock #: H9001A</p>
			<span>$19,995</span>
			<span>62,400 km</span>
			<img src="https://cdn.dealer.test/civic.jpg">
			<a href="https://www.carfax.ca/report/2HGFC2F59KH000001">Carfax</a>
		</body></html>`

	v, err := ParseVDP(html, "https://dealer.test/vehicles/civic")
	if err != nil {
		t.Fatal(err)
	}
	if v.VIN != "2HGFC2F59KH000001" {
		t.Errorf("VIN = %q", v.VIN)
	}
	if v.Year != 2019 || v.Make != "Honda" {
		t.Errorf("year/make = %d/%q", v.Year, v.Make)
	}
	if v.StockNumber != "H9001A" {
		t.Errorf("StockNumber = %q", v.StockNumber)
	}
	if v.Price != 19995 {
		t.Errorf("Price = %d", v.Price)
	}
	if v.Odometer != 62400 {
		t.Errorf("Odometer = %d", v.Odometer)
	}
	if v.CarfaxURL == "" {
		t.Error("CarfaxURL not extracted")
	}
}

func TestParseVDP_NoIdentityFails(t *testing.T) {
	if _, err := ParseVDP("<html><body>nothing here</body></html>", "https://dealer.test/x"); err == nil {
		t.Error("a page with no VIN and no make/model must fail to parse")
	}
}
