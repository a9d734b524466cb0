package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `catalog:
  defaultProduct: premium_course
  products:
    - code: premium_course
      name: Premium course
      price: "5490"
    - code: basic_course
      name: Basic course
      price: "1000"
  promoCodes:
    - code: SUMMER10
      type: percent
      value: "10"
      maxUsesPerEmail: 1
`

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewCatalogHolderReadsFile(t *testing.T) {
	holder, err := NewCatalogHolder(Config{CatalogPath: writeCatalog(t, catalogYAML)})
	require.NoError(t, err)

	assert.Equal(t, "premium_course", holder.DefaultProductCode())
	p, ok := holder.Product("basic_course")
	require.True(t, ok)
	assert.Equal(t, "1000", p.Price)

	promos := holder.Get().PromoCodes
	require.Len(t, promos, 1)
	assert.Equal(t, "SUMMER10", promos[0].Code)
	assert.Equal(t, 1, promos[0].MaxUsesPerEmail)
}

func TestNewCatalogHolderExplicitPathMustExist(t *testing.T) {
	_, err := NewCatalogHolder(Config{CatalogPath: filepath.Join(t.TempDir(), "missing.yml")})
	assert.Error(t, err)
}

func TestNewCatalogHolderRejectsInvalidCatalog(t *testing.T) {
	body := `catalog:
  defaultProduct: gone
  products:
    - code: premium_course
      name: Premium course
      price: "5490"
`
	_, err := NewCatalogHolder(Config{CatalogPath: writeCatalog(t, body)})
	assert.Error(t, err)
}

func TestValidateCatalog(t *testing.T) {
	cases := []struct {
		name    string
		catalog Catalog
		ok      bool
	}{
		{name: "default", catalog: DefaultCatalog(), ok: true},
		{name: "empty", catalog: Catalog{}},
		{name: "zero price", catalog: Catalog{Products: []Product{{Code: "a", Price: "0"}}}},
		{name: "bad price", catalog: Catalog{Products: []Product{{Code: "a", Price: "free"}}}},
		{name: "duplicate", catalog: Catalog{Products: []Product{{Code: "a", Price: "1"}, {Code: "a", Price: "2"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateCatalog(tc.catalog)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDefaultProductFallsBackToFirst(t *testing.T) {
	holder, err := NewStaticCatalog(Catalog{Products: []Product{{Code: "only", Price: "10"}}})
	require.NoError(t, err)
	assert.Equal(t, "only", holder.DefaultProductCode())

	_, ok := holder.Product("premium_course")
	assert.False(t, ok)
}
