package model

import (
	"fmt"
	"strings"
)

// Commodity identifies an energy carrier traded on the market.
type Commodity string

const (
	Electricity Commodity = "ELECTRICITY"
	Heat        Commodity = "HEAT"
	NaturalGas  Commodity = "NATGAS"
)

// ParseCommodity normalizes a configured commodity name.
func ParseCommodity(s string) (Commodity, error) {
	c := Commodity(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case Electricity, Heat, NaturalGas:
		return c, nil
	default:
		return "", fmt.Errorf("unknown commodity %q", s)
	}
}

func (c Commodity) String() string { return string(c) }

// UnmarshalText parses and normalizes a commodity name.
func (c *Commodity) UnmarshalText(b []byte) error {
	v, err := ParseCommodity(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
