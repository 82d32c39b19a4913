package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/BatmanBruc/mother-bot/types"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// LoadCatalog reads the plan and referral catalog from path, or the embedded
// default when path is empty.
func LoadCatalog(path string) (*types.Catalog, error) {
	data := defaultCatalog
	if p := strings.TrimSpace(path); p != "" {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*types.Catalog, error) {
	var c types.Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	seen := make(map[string]bool, len(c.Plans))
	for i := range c.Plans {
		p := &c.Plans[i]
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate plan %q", p.ID)
		}
		seen[p.ID] = true
		price, err := decimal.NewFromString(p.PriceRaw)
		if err != nil {
			return nil, fmt.Errorf("plan %s price: %w", p.ID, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("plan %s price is negative", p.ID)
		}
		p.Price = price
	}

	tiers := c.Referral.Tiers
	for i := 1; i < len(tiers); i++ {
		if tiers[i].MinCredited <= tiers[i-1].MinCredited {
			return nil, fmt.Errorf("referral tiers must be ordered by min_credited")
		}
		if tiers[i].Rate < tiers[i-1].Rate {
			return nil, fmt.Errorf("referral tier rates must not decrease")
		}
	}
	if tiers[0].MinCredited != 0 {
		return nil, fmt.Errorf("first referral tier must start at min_credited 0")
	}
	return &c, nil
}
