package app

import (
	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/model"
)

// targetSources drains every source; later sources override earlier ones
// field by field.
type targetSources []auction.TargetSource

func (s targetSources) TakeOverride(c model.Commodity) (auction.Override, bool) {
	var out auction.Override
	found := false
	for _, src := range s {
		o, ok := src.TakeOverride(c)
		if !ok {
			continue
		}
		found = true
		if o.Mode != "" {
			out.Mode = o.Mode
		}
		if o.Target != nil {
			out.Target = o.Target
		}
	}
	return out, found
}
