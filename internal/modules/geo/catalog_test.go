package geo

import "testing"

func TestDefaultCatalogLookups(t *testing.T) {
	c, err := Default("uz")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.CountryName("RU", "ru"); got != "Россия" {
		t.Errorf("CountryName = %q", got)
	}
	if got := c.CountryName("RU", "xx"); got != "Rossiya" {
		t.Errorf("fallback name = %q", got)
	}
	if _, ok := c.City("UZ", "tashkent", "chirchiq"); !ok {
		t.Errorf("expected chirchiq in tashkent")
	}
	if _, ok := c.City("UZ", "samarkand", "chirchiq"); ok {
		t.Errorf("city must belong to its region")
	}
	if got := c.CountryName("ZZ", "en"); got != "ZZ" {
		t.Errorf("unknown code should echo, got %q", got)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse([]byte("countries: []"), "uz"); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}

func TestPlace(t *testing.T) {
	c, err := Default("uz")
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name                  string
		country, region, city string
		want                  string
	}{
		{"catalog city", "UZ", "tashkent", "chirchiq", "Chirchiq, Uzbekistan"},
		{"manual city", "RU", "moscow", "Khimki", "Khimki, Russia"},
		{"country only", "RU", "", "", "Russia"},
		{"region without city", "UZ", "samarkand", "", "Samarkand, Uzbekistan"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Place(tc.country, tc.region, tc.city, "en"); got != tc.want {
				t.Errorf("Place = %q, want %q", got, tc.want)
			}
		})
	}
}
