package auction

import (
	"fmt"

	"github.com/kilianp07/gridmarket/core/curve"
)

// Domain is the price axis shared by every bid of a market.
type Domain struct {
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
	// MinComfort and MaxComfort span the placeholder price axis used by
	// devices without real price elasticity. Zero values mean the full domain.
	MinComfort float64 `json:"min_comfort"`
	MaxComfort float64 `json:"max_comfort"`
}

// DefaultDomain is the [-1000, 1000] axis used when nothing is configured.
var DefaultDomain = Domain{MinPrice: -1000, MaxPrice: 1000, MinComfort: -1000, MaxComfort: 1000}

// SetDefaults fills an unset comfort window with the price domain.
func (d *Domain) SetDefaults() {
	if d.MinPrice == 0 && d.MaxPrice == 0 {
		d.MinPrice, d.MaxPrice = DefaultDomain.MinPrice, DefaultDomain.MaxPrice
	}
	if d.MinComfort == 0 && d.MaxComfort == 0 {
		d.MinComfort, d.MaxComfort = d.MinPrice, d.MaxPrice
	}
}

// Validate checks that the comfort window lies inside a non-empty domain.
func (d Domain) Validate() error {
	if d.MinPrice >= d.MaxPrice {
		return fmt.Errorf("%w: empty price domain [%v, %v]", ErrConfiguration, d.MinPrice, d.MaxPrice)
	}
	if d.MinComfort >= d.MaxComfort || d.MinComfort < d.MinPrice || d.MaxComfort > d.MaxPrice {
		return fmt.Errorf("%w: comfort window [%v, %v] not inside [%v, %v]",
			ErrConfiguration, d.MinComfort, d.MaxComfort, d.MinPrice, d.MaxPrice)
	}
	return nil
}

// NewCurve returns an empty curve on the domain with its comfort window set.
func (d Domain) NewCurve() (*curve.Curve, error) {
	c, err := curve.New(d.MinPrice, d.MaxPrice)
	if err != nil {
		return nil, err
	}
	if err := c.SetComfort(d.MinComfort, d.MaxComfort); err != nil {
		return nil, err
	}
	return c, nil
}

// Flat returns a curve with constant demand over the whole domain.
func (d Domain) Flat(demand float64) (*curve.Curve, error) {
	c, err := d.NewCurve()
	if err != nil {
		return nil, err
	}
	if err := c.AddLine(demand, demand, d.MinPrice, d.MaxPrice); err != nil {
		return nil, err
	}
	return c, nil
}

// Line returns a curve falling from high at MinComfort to low at MaxComfort.
// Outside the comfort window the curve keeps its boundary demand. A line with
// high == low degrades to a flat curve.
func (d Domain) Line(high, low float64) (*curve.Curve, error) {
	if high == low {
		return d.Flat(high)
	}
	c, err := d.NewCurve()
	if err != nil {
		return nil, err
	}
	if err := c.AddLine(high, low, d.MinComfort, d.MaxComfort); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBid, err)
	}
	return c, nil
}

// fallback is the zero-flexibility bid substituted for a failed participant.
func (d Domain) fallback() *curve.Curve {
	c, err := d.Flat(0)
	if err != nil {
		// Domain is validated before the first interval.
		c, _ = curve.New(-1, 1)
	}
	return c
}

// snap quantizes price to MinPrice + k*step, staying inside the domain.
func (d Domain) snap(price, step float64) float64 {
	if step <= 0 {
		return price
	}
	k := (price - d.MinPrice) / step
	p := d.MinPrice + float64(int64(k+0.5))*step
	if k < 0 {
		p = d.MinPrice
	}
	for p > d.MaxPrice {
		p -= step
	}
	if p < d.MinPrice {
		p = d.MinPrice
	}
	return p
}
