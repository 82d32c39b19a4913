package types

import (
	"github.com/shopspring/decimal"
)

type Plan struct {
	ID           string          `yaml:"id" validate:"required"`
	Name         string          `yaml:"name" validate:"required"`
	Price        decimal.Decimal `yaml:"-"`
	PriceRaw     string          `yaml:"price" validate:"required,numeric"`
	DurationDays int             `yaml:"duration_days" validate:"gt=0"`
	MaxProducts  int             `yaml:"max_products" validate:"gte=0"`
}

func (p Plan) Free() bool {
	return p.Price.IsZero()
}

type ReferralTier struct {
	MinCredited int     `yaml:"min_credited" validate:"gte=0"`
	Rate        float64 `yaml:"rate" validate:"gte=0,lte=1"`
}

type ReferralPolicy struct {
	Tiers []ReferralTier `yaml:"tiers" validate:"required,min=1,dive"`
	// UplineRates[i] is the rate paid at level i+2.
	UplineRates []float64 `yaml:"upline_rates" validate:"dive,gte=0,lte=1"`
	MaxDepth    int       `yaml:"max_depth" validate:"gte=1,lte=10"`
}

type Catalog struct {
	Plans    []Plan         `yaml:"plans" validate:"required,min=1,dive"`
	Referral ReferralPolicy `yaml:"referral"`
}

func (c *Catalog) Plan(id string) (Plan, bool) {
	for _, p := range c.Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

func (c *Catalog) PaidPlans() []Plan {
	out := make([]Plan, 0, len(c.Plans))
	for _, p := range c.Plans {
		if !p.Free() {
			out = append(out, p)
		}
	}
	return out
}
