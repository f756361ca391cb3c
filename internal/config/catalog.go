package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/raster-pipeline/internal/calendar"
	"github.com/couchcryptid/raster-pipeline/internal/metadata"
	"github.com/couchcryptid/raster-pipeline/internal/storage"
)

//go:embed products.yaml
var defaultCatalog []byte

// Catalog is the set of configured data products, keyed by product name.
type Catalog struct {
	Products map[string]Product `yaml:"products"`
}

// Product holds the settings of one data product.
type Product struct {
	Name          string             `yaml:"-"`
	Container     string             `yaml:"container"`
	RawPath       string             `yaml:"raw_path"`
	ProcessedPath string             `yaml:"processed_path"`
	Frequency     calendar.Frequency `yaml:"frequency"`
	// BaseURL is a text/template rendered with the fields of URLData.
	BaseURL string `yaml:"base_url"`
	// Earliest is the first date the product was published, YYYY-MM-DD.
	Earliest       string                          `yaml:"earliest"`
	Bounds         map[storage.Mode]metadata.Bounds `yaml:"bounds"`
	LeadtimeWindow int                             `yaml:"leadtime_window"`
	// Run selects the IMERG processing run, "late" or "early".
	Run string `yaml:"run"`
	// Band selects the FloodScan band, "sfed" or "mfed".
	Band     string            `yaml:"band"`
	Metadata metadata.Defaults `yaml:"metadata"`

	urlTemplate *template.Template
	earliest    time.Time
}

// URLData is the data a product's BaseURL template is rendered with.
type URLData struct {
	Date     time.Time
	Raw      string
	Run      string
	Leadtime int
	Bounds   metadata.Bounds
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalogFile reads a catalog from a YAML file.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read PRODUCTS_FILE: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse product catalog: %w", err)
	}
	if len(c.Products) == 0 {
		return nil, errors.New("product catalog has no products")
	}
	for name, p := range c.Products {
		p.Name = name
		if err := p.init(); err != nil {
			return nil, fmt.Errorf("product %s: %w", name, err)
		}
		c.Products[name] = p
	}
	return &c, nil
}

func (p *Product) init() error {
	if p.Container == "" || p.RawPath == "" || p.ProcessedPath == "" {
		return errors.New("container, raw_path and processed_path are required")
	}
	if _, err := calendar.ParseFrequency(string(p.Frequency)); err != nil {
		return err
	}
	if p.LeadtimeWindow < 0 {
		return fmt.Errorf("leadtime_window %d is negative", p.LeadtimeWindow)
	}
	if p.LeadtimeWindow > 0 && p.Metadata.LeadtimeUnits == "" {
		return errors.New("leadtime_window is set but metadata.leadtime_units is not")
	}
	if p.Earliest != "" {
		t, err := time.Parse(time.DateOnly, p.Earliest)
		if err != nil {
			return fmt.Errorf("invalid earliest date: %w", err)
		}
		p.earliest = t
	}
	tmpl, err := template.New(p.Name).Option("missingkey=error").Parse(p.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	p.urlTemplate = tmpl
	return nil
}

// Lookup returns the named product.
func (c *Catalog) Lookup(name string) (Product, error) {
	p, ok := c.Products[strings.ToLower(name)]
	if !ok {
		return Product{}, fmt.Errorf("unknown product %q (configured: %s)", name, strings.Join(c.Names(), ", "))
	}
	return p, nil
}

// Names lists the configured products in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Products))
	for n := range c.Products {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// BoundsFor returns the extent configured for mode, or the whole globe.
func (p Product) BoundsFor(mode storage.Mode) metadata.Bounds {
	if b, ok := p.Bounds[mode]; ok {
		return b
	}
	return metadata.GlobalBounds
}

// EarliestDate returns the first published date, or the zero time.
func (p Product) EarliestDate() time.Time { return p.earliest }

// URL renders the product's BaseURL.
func (p Product) URL(d URLData) (string, error) {
	if p.urlTemplate == nil {
		return "", fmt.Errorf("product %s has no base_url", p.Name)
	}
	var b strings.Builder
	if err := p.urlTemplate.Execute(&b, d); err != nil {
		return "", fmt.Errorf("render %s url: %w", p.Name, err)
	}
	return b.String(), nil
}
