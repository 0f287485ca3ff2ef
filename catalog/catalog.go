package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rarity tiers, highest first. Rarity selection checks the cumulative
// percentage table in this priority order against a [0,100) draw.
type Rarity string

const (
	RaritySSR Rarity = "SSR"
	RaritySR  Rarity = "SR"
	RarityR   Rarity = "R"
	RarityN   Rarity = "N"
)

// Tiers lists all rarities in selection priority order.
var Tiers = []Rarity{RaritySSR, RaritySR, RarityR, RarityN}

// Item is one reward in a rarity pool. Weight is its relative pick
// weight within the pool.
type Item struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Rarity Rarity `yaml:"rarity"`
	Weight int    `yaml:"weight"`
}

// Pricing holds pull costs. TenPull is the bundled discounted price for
// ten sequential pulls.
type Pricing struct {
	SinglePull int `yaml:"single_pull"`
	TenPull    int `yaml:"ten_pull"`
}

// Catalog is the static reward table loaded from YAML.
type Catalog struct {
	Version string             `yaml:"version"`
	Rates   map[Rarity]float64 `yaml:"rates"` // percent per tier, sums to 100
	Pricing Pricing            `yaml:"pricing"`
	Items   []Item             `yaml:"items"`

	pools map[Rarity][]Item
}

// Load reads and validates a catalog YAML file.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if err := c.buildAndValidate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// New builds a catalog from already-parsed parts. Used by tests.
func New(rates map[Rarity]float64, pricing Pricing, items []Item) (*Catalog, error) {
	c := &Catalog{Rates: rates, Pricing: pricing, Items: items}
	if err := c.buildAndValidate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Pool returns the item pool for a rarity. Pools are non-empty for
// every tier; Load rejects catalogs that violate this.
func (c *Catalog) Pool(r Rarity) []Item { return c.pools[r] }

// ItemByID looks up an item across all pools.
func (c *Catalog) ItemByID(id string) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (c *Catalog) buildAndValidate() error {
	if c.Pricing.SinglePull <= 0 {
		return fmt.Errorf("catalog: pricing.single_pull must be positive")
	}
	if c.Pricing.TenPull <= 0 || c.Pricing.TenPull > 10*c.Pricing.SinglePull {
		return fmt.Errorf("catalog: pricing.ten_pull must be positive and at most 10x single")
	}

	sum := 0.0
	for _, tier := range Tiers {
		pct, ok := c.Rates[tier]
		if !ok || pct <= 0 {
			return fmt.Errorf("catalog: missing or non-positive rate for %s", tier)
		}
		sum += pct
	}
	if sum < 99.999 || sum > 100.001 {
		return fmt.Errorf("catalog: rates must sum to 100, got %.3f", sum)
	}

	c.pools = make(map[Rarity][]Item, len(Tiers))
	seen := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		if it.ID == "" {
			return fmt.Errorf("catalog: item with empty id")
		}
		if seen[it.ID] {
			return fmt.Errorf("catalog: duplicate item id %q", it.ID)
		}
		seen[it.ID] = true
		if it.Weight <= 0 {
			return fmt.Errorf("catalog: item %q weight must be positive", it.ID)
		}
		switch it.Rarity {
		case RaritySSR, RaritySR, RarityR, RarityN:
		default:
			return fmt.Errorf("catalog: item %q has unknown rarity %q", it.ID, it.Rarity)
		}
		c.pools[it.Rarity] = append(c.pools[it.Rarity], it)
	}
	for _, tier := range Tiers {
		if len(c.pools[tier]) == 0 {
			return fmt.Errorf("catalog: empty item pool for %s", tier)
		}
	}
	return nil
}
