// README: Country / region / city catalog used by location pickers.
package geo

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Names maps a language code to a display name.
type Names map[string]string

// In returns the name for lang, falling back to fallback and then to any name.
func (n Names) In(lang, fallback string) string {
	if v, ok := n[lang]; ok {
		return v
	}
	if v, ok := n[fallback]; ok {
		return v
	}
	for _, v := range n {
		return v
	}
	return ""
}

type City struct {
	Code  string `yaml:"code"`
	Names Names  `yaml:"names"`
}

type Region struct {
	Code   string `yaml:"code"`
	Names  Names  `yaml:"names"`
	Cities []City `yaml:"cities"`
}

type Country struct {
	Code    string   `yaml:"code"`
	Names   Names    `yaml:"names"`
	Regions []Region `yaml:"regions"`
}

type Catalog struct {
	Countries []Country `yaml:"countries"`
	fallback  string
}

// Default parses the embedded catalog.
func Default(fallbackLang string) (*Catalog, error) {
	return Parse(defaultCatalog, fallbackLang)
}

// Load reads a catalog file. An empty path returns the embedded catalog.
func Load(path, fallbackLang string) (*Catalog, error) {
	if path == "" {
		return Default(fallbackLang)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, fallbackLang)
}

func Parse(data []byte, fallbackLang string) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Countries) == 0 {
		return nil, fmt.Errorf("catalog has no countries")
	}
	c.fallback = fallbackLang
	return &c, nil
}

func (c *Catalog) Country(code string) (Country, bool) {
	for _, co := range c.Countries {
		if co.Code == code {
			return co, true
		}
	}
	return Country{}, false
}

func (c *Catalog) Region(country, code string) (Region, bool) {
	co, ok := c.Country(country)
	if !ok {
		return Region{}, false
	}
	for _, r := range co.Regions {
		if r.Code == code {
			return r, true
		}
	}
	return Region{}, false
}

func (c *Catalog) City(country, region, code string) (City, bool) {
	r, ok := c.Region(country, region)
	if !ok {
		return City{}, false
	}
	for _, ci := range r.Cities {
		if ci.Code == code {
			return ci, true
		}
	}
	return City{}, false
}

// Name resolves display names for the stored codes.
func (c *Catalog) CountryName(code, lang string) string {
	if co, ok := c.Country(code); ok {
		return co.Names.In(lang, c.fallback)
	}
	return code
}

func (c *Catalog) RegionName(country, code, lang string) string {
	if r, ok := c.Region(country, code); ok {
		return r.Names.In(lang, c.fallback)
	}
	return code
}

func (c *Catalog) Fallback() string { return c.fallback }

// CityName returns the catalog name, or code itself for a manually typed city.
func (c *Catalog) CityName(country, region, code, lang string) string {
	if ci, ok := c.City(country, region, code); ok {
		return ci.Names.In(lang, c.fallback)
	}
	return code
}

// Place renders "city, country" for display. Missing parts are left out.
func (c *Catalog) Place(country, region, city, lang string) string {
	var parts []string
	if city != "" {
		parts = append(parts, c.CityName(country, region, city, lang))
	} else if region != "" {
		parts = append(parts, c.RegionName(country, region, lang))
	}
	if country != "" {
		parts = append(parts, c.CountryName(country, lang))
	}
	return strings.Join(parts, ", ")
}
