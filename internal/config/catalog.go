package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Product is a sellable catalog entry. Price is the authoritative charge in
// the gateway currency; client-supplied amounts are never used.
type Product struct {
	Code  string `mapstructure:"code"`
	Name  string `mapstructure:"name"`
	Price string `mapstructure:"price"`
}

// PromoSeed describes a promo code that is inserted at startup when missing.
type PromoSeed struct {
	Code            string `mapstructure:"code"`
	Type            string `mapstructure:"type"`
	Value           string `mapstructure:"value"`
	MinAmount       string `mapstructure:"minAmount"`
	ExpiresAt       string `mapstructure:"expiresAt"`
	MaxUses         int    `mapstructure:"maxUses"`
	MaxUsesPerEmail int    `mapstructure:"maxUsesPerEmail"`
}

type Catalog struct {
	DefaultProduct string      `mapstructure:"defaultProduct"`
	Products       []Product   `mapstructure:"products"`
	PromoCodes     []PromoSeed `mapstructure:"promoCodes"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		DefaultProduct: "premium_course",
		Products: []Product{
			{Code: "premium_course", Name: "Premium course", Price: "5490"},
		},
	}
}

type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

// NewCatalogHolder reads catalog.yml and keeps it fresh on file changes. A
// missing file falls back to DefaultCatalog unless CATALOG_PATH points at it
// explicitly.
func NewCatalogHolder(cfg Config) (*CatalogHolder, error) {
	v := viper.New()

	explicit := strings.TrimSpace(cfg.CatalogPath)
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/coursepay")
		v.AddConfigPath(".")
	}

	loaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		loaded = false
	}

	catalog := DefaultCatalog()
	if loaded {
		var fromFile Catalog
		if err := v.UnmarshalKey("catalog", &fromFile); err != nil {
			return nil, err
		}
		catalog = fromFile
	}

	holder, err := NewStaticCatalog(catalog)
	if err != nil {
		return nil, err
	}

	if loaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated Catalog
			if err := v.UnmarshalKey("catalog", &updated); err != nil {
				log.Printf("[catalog] reload failed: %v", err)
				return
			}
			if err := validateCatalog(updated); err != nil {
				log.Printf("[catalog] invalid catalog ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[catalog] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticCatalog builds a holder that never reloads.
func NewStaticCatalog(catalog Catalog) (*CatalogHolder, error) {
	if err := validateCatalog(catalog); err != nil {
		return nil, err
	}
	holder := &CatalogHolder{}
	holder.current.Store(catalog)
	return holder, nil
}

func (h *CatalogHolder) Get() Catalog {
	return h.current.Load().(Catalog)
}

func (h *CatalogHolder) Product(code string) (Product, bool) {
	code = strings.TrimSpace(code)
	for _, p := range h.Get().Products {
		if p.Code == code {
			return p, true
		}
	}
	return Product{}, false
}

// DefaultProductCode falls back to the first listed product.
func (h *CatalogHolder) DefaultProductCode() string {
	c := h.Get()
	if c.DefaultProduct != "" {
		return c.DefaultProduct
	}
	return c.Products[0].Code
}

func validateCatalog(c Catalog) error {
	if len(c.Products) == 0 {
		return errors.New("catalog.products cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Products))
	for _, p := range c.Products {
		code := strings.TrimSpace(p.Code)
		if code == "" {
			return errors.New("catalog.products: code is required")
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("catalog.products: duplicate code %q", code)
		}
		seen[code] = struct{}{}

		price, err := decimal.NewFromString(strings.TrimSpace(p.Price))
		if err != nil || !price.IsPositive() {
			return fmt.Errorf("catalog.products[%s]: price must be a positive number", code)
		}
	}
	if c.DefaultProduct != "" {
		if _, ok := seen[c.DefaultProduct]; !ok {
			return fmt.Errorf("catalog.defaultProduct %q is not in catalog.products", c.DefaultProduct)
		}
	}
	return nil
}

