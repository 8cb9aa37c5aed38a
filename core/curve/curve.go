package curve

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/integrate"
)

// Tolerance is the relative tolerance used for demand comparisons.
const Tolerance = 1e-9

// priceEpsilon merges breakpoints whose prices differ by less than this value.
const priceEpsilon = 1e-9

var (
	// ErrNonMonotonic is returned when a mutation would make demand increase
	// with price.
	ErrNonMonotonic = errors.New("curve: demand must be non-increasing in price")
	// ErrDegenerateSegment is returned by AddLine when both prices are equal.
	ErrDegenerateSegment = errors.New("curve: degenerate segment")
	// ErrOutOfDomain is returned when a breakpoint lies outside the price domain.
	ErrOutOfDomain = errors.New("curve: price outside domain")
	// ErrInvalidValue is returned for NaN or infinite inputs.
	ErrInvalidValue = errors.New("curve: invalid value")
)

// Point is a single breakpoint of a curve.
type Point struct {
	Price  float64 `json:"price"`
	Demand float64 `json:"demand"`
}

// Curve is a piecewise-linear demand function of price.
type Curve struct {
	points     []Point
	minPrice   float64
	maxPrice   float64
	minComfort float64
	maxComfort float64
}

// New returns an empty curve over the price domain [minPrice, maxPrice].
func New(minPrice, maxPrice float64) (*Curve, error) {
	if !finite(minPrice) || !finite(maxPrice) {
		return nil, fmt.Errorf("%w: domain [%v, %v]", ErrInvalidValue, minPrice, maxPrice)
	}
	if minPrice >= maxPrice {
		return nil, fmt.Errorf("curve: empty domain [%v, %v]", minPrice, maxPrice)
	}
	return &Curve{minPrice: minPrice, maxPrice: maxPrice, minComfort: minPrice, maxComfort: maxPrice}, nil
}

// Flat returns a curve with constant demand over the whole domain.
func Flat(minPrice, maxPrice, demand float64) (*Curve, error) {
	c, err := New(minPrice, maxPrice)
	if err != nil {
		return nil, err
	}
	if err := c.AddLine(demand, demand, minPrice, maxPrice); err != nil {
		return nil, err
	}
	return c, nil
}

// SetComfort restricts the comfort window used as the price axis by devices
// without real price elasticity. The window must lie inside the domain.
func (c *Curve) SetComfort(minComfort, maxComfort float64) error {
	if !finite(minComfort) || !finite(maxComfort) {
		return ErrInvalidValue
	}
	if minComfort >= maxComfort {
		return fmt.Errorf("curve: empty comfort window [%v, %v]", minComfort, maxComfort)
	}
	if minComfort < c.minPrice-priceEpsilon || maxComfort > c.maxPrice+priceEpsilon {
		return fmt.Errorf("%w: comfort [%v, %v]", ErrOutOfDomain, minComfort, maxComfort)
	}
	c.minComfort, c.maxComfort = minComfort, maxComfort
	return nil
}

func (c *Curve) MinPrice() float64   { return c.minPrice }
func (c *Curve) MaxPrice() float64   { return c.maxPrice }
func (c *Curve) MinComfort() float64 { return c.minComfort }
func (c *Curve) MaxComfort() float64 { return c.maxComfort }

// Len returns the number of breakpoints.
func (c *Curve) Len() int { return len(c.points) }

// Points returns a copy of the breakpoints.
func (c *Curve) Points() []Point { return append([]Point(nil), c.points...) }

// Clone returns a deep copy.
func (c *Curve) Clone() *Curve {
	cp := *c
	cp.points = append([]Point(nil), c.points...)
	return &cp
}

// AddPoint inserts a breakpoint, overwriting an existing one at the same price.
func (c *Curve) AddPoint(price, demand float64) error {
	if !finite(price) || !finite(demand) {
		return ErrInvalidValue
	}
	if err := c.checkDomain(price); err != nil {
		return err
	}
	next := insert(c.points, Point{Price: c.snap(price), Demand: demand})
	if !monotone(next) {
		return fmt.Errorf("%w: (%v, %v)", ErrNonMonotonic, price, demand)
	}
	c.points = next
	return nil
}

// AddLine inserts the two breakpoints (priceA, demandA) and (priceB, demandB).
// Breakpoints strictly between both prices are replaced by the segment. The
// curve is left unchanged when the segment is degenerate or the result would
// not be monotone.
func (c *Curve) AddLine(demandA, demandB, priceA, priceB float64) error {
	for _, v := range []float64{demandA, demandB, priceA, priceB} {
		if !finite(v) {
			return ErrInvalidValue
		}
	}
	if scalar.EqualWithinAbs(priceA, priceB, priceEpsilon) {
		return fmt.Errorf("%w: price %v", ErrDegenerateSegment, priceA)
	}
	if priceA > priceB {
		priceA, priceB = priceB, priceA
		demandA, demandB = demandB, demandA
	}
	if err := c.checkDomain(priceA); err != nil {
		return err
	}
	if err := c.checkDomain(priceB); err != nil {
		return err
	}
	priceA, priceB = c.snap(priceA), c.snap(priceB)
	next := make([]Point, 0, len(c.points)+2)
	for _, p := range c.points {
		if p.Price > priceA+priceEpsilon && p.Price < priceB-priceEpsilon {
			continue
		}
		next = append(next, p)
	}
	next = insert(next, Point{Price: priceA, Demand: demandA})
	next = insert(next, Point{Price: priceB, Demand: demandB})
	if !monotone(next) {
		return fmt.Errorf("%w: segment (%v, %v)-(%v, %v)", ErrNonMonotonic, priceA, demandA, priceB, demandB)
	}
	c.points = next
	return nil
}

// AddFunction returns the pointwise sum of c and other. Neither operand is
// modified. The result spans the union of both domains.
func (c *Curve) AddFunction(other *Curve) *Curve {
	return c.combine(other, func(a, b float64) float64 { return a + b })
}

// Difference returns the pointwise difference c - other. The result is not
// required to be monotone; see IsMonotone.
func (c *Curve) Difference(other *Curve) *Curve {
	return c.combine(other, func(a, b float64) float64 { return a - b })
}

func (c *Curve) combine(other *Curve, op func(a, b float64) float64) *Curve {
	if other == nil {
		return c.Clone()
	}
	out := &Curve{
		minPrice:   math.Min(c.minPrice, other.minPrice),
		maxPrice:   math.Max(c.maxPrice, other.maxPrice),
		minComfort: math.Min(c.minComfort, other.minComfort),
		maxComfort: math.Max(c.maxComfort, other.maxComfort),
	}
	prices := mergePrices(c.points, other.points)
	pts := make([]Point, len(prices))
	for i, p := range prices {
		pts[i] = Point{Price: p, Demand: op(c.DemandForPrice(p), other.DemandForPrice(p))}
	}
	out.points = simplify(pts)
	return out
}

// DemandForPrice evaluates the curve. An empty curve has zero demand.
func (c *Curve) DemandForPrice(price float64) float64 {
	n := len(c.points)
	if n == 0 {
		return 0
	}
	if price <= c.points[0].Price {
		return c.points[0].Demand
	}
	if price >= c.points[n-1].Price {
		return c.points[n-1].Demand
	}
	i := sort.Search(n, func(i int) bool { return c.points[i].Price >= price })
	b := c.points[i]
	if b.Price == price {
		return b.Demand
	}
	a := c.points[i-1]
	return a.Demand + (b.Demand-a.Demand)*(price-a.Price)/(b.Price-a.Price)
}

// PriceForDemand returns the price at which the curve yields demand. Targets
// outside the representable range clamp to the domain bounds.
func (c *Curve) PriceForDemand(demand float64) float64 {
	p, _ := c.Invert(demand)
	return p
}

// Invert is PriceForDemand that also reports whether demand was inside the
// curve's representable range.
//
// A flat (or empty) curve has no unique inverse and always yields minPrice.
// Demand above the largest demand yields minPrice, below the smallest yields
// maxPrice.
func (c *Curve) Invert(demand float64) (float64, bool) {
	n := len(c.points)
	if n == 0 {
		return c.minPrice, false
	}
	first, last := c.points[0], c.points[n-1]
	if c.IsFlat() {
		return c.minPrice, equalDemand(demand, first.Demand)
	}
	if demand > first.Demand && !equalDemand(demand, first.Demand) {
		return c.minPrice, false
	}
	if demand < last.Demand && !equalDemand(demand, last.Demand) {
		return c.maxPrice, false
	}
	for i := 0; i < n-1; i++ {
		a, b := c.points[i], c.points[i+1]
		if equalDemand(a.Demand, b.Demand) {
			continue
		}
		if (demand <= a.Demand || equalDemand(demand, a.Demand)) && (demand >= b.Demand || equalDemand(demand, b.Demand)) {
			frac := (a.Demand - demand) / (a.Demand - b.Demand)
			frac = math.Max(0, math.Min(1, frac))
			return a.Price + frac*(b.Price-a.Price), true
		}
	}
	if math.Abs(demand-first.Demand) <= math.Abs(demand-last.Demand) {
		return c.minPrice, true
	}
	return c.maxPrice, true
}

// DemandRange returns the smallest and largest demand the curve represents.
func (c *Curve) DemandRange() (float64, float64) {
	if len(c.points) == 0 {
		return 0, 0
	}
	lo, hi := c.points[0].Demand, c.points[0].Demand
	for _, p := range c.points[1:] {
		lo = math.Min(lo, p.Demand)
		hi = math.Max(hi, p.Demand)
	}
	return lo, hi
}

// Surface integrates demand over [minPrice, maxPrice] with the trapezoidal rule.
func (c *Curve) Surface() float64 {
	if len(c.points) == 0 {
		return 0
	}
	xs := make([]float64, 0, len(c.points)+2)
	ys := make([]float64, 0, len(c.points)+2)
	if c.points[0].Price > c.minPrice {
		xs = append(xs, c.minPrice)
		ys = append(ys, c.points[0].Demand)
	}
	for _, p := range c.points {
		xs = append(xs, p.Price)
		ys = append(ys, p.Demand)
	}
	if last := c.points[len(c.points)-1]; last.Price < c.maxPrice {
		xs = append(xs, c.maxPrice)
		ys = append(ys, last.Demand)
	}
	return integrate.Trapezoidal(xs, ys)
}

// Reset discards all breakpoints and restores the full-flexibility default:
// zero demand across the comfort window.
func (c *Curve) Reset() {
	c.points = []Point{{Price: c.minComfort, Demand: 0}, {Price: c.maxComfort, Demand: 0}}
}

// IsFlat reports whether every breakpoint has the same demand.
func (c *Curve) IsFlat() bool {
	for i := 1; i < len(c.points); i++ {
		if !equalDemand(c.points[i].Demand, c.points[0].Demand) {
			return false
		}
	}
	return true
}

// IsMonotone reports whether demand is non-increasing in price.
func (c *Curve) IsMonotone() bool { return monotone(c.points) }

func (c *Curve) checkDomain(price float64) error {
	if price < c.minPrice-priceEpsilon || price > c.maxPrice+priceEpsilon {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfDomain, price, c.minPrice, c.maxPrice)
	}
	return nil
}

// snap pulls prices within epsilon of a bound onto the bound.
func (c *Curve) snap(price float64) float64 {
	switch {
	case price < c.minPrice:
		return c.minPrice
	case price > c.maxPrice:
		return c.maxPrice
	}
	return price
}

func insert(pts []Point, p Point) []Point {
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Price >= p.Price-priceEpsilon })
	if i < len(pts) && scalar.EqualWithinAbs(pts[i].Price, p.Price, priceEpsilon) {
		out := append([]Point(nil), pts...)
		out[i] = p
		return out
	}
	out := make([]Point, 0, len(pts)+1)
	out = append(out, pts[:i]...)
	out = append(out, p)
	return append(out, pts[i:]...)
}

func mergePrices(a, b []Point) []float64 {
	all := make([]float64, 0, len(a)+len(b))
	for _, p := range a {
		all = append(all, p.Price)
	}
	for _, p := range b {
		all = append(all, p.Price)
	}
	sort.Float64s(all)
	out := all[:0]
	for _, p := range all {
		if len(out) > 0 && scalar.EqualWithinAbs(out[len(out)-1], p, priceEpsilon) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// simplify drops interior breakpoints that lie on the segment joining their
// kept predecessor and their successor.
func simplify(pts []Point) []Point {
	if len(pts) < 3 {
		return pts
	}
	out := make([]Point, 0, len(pts))
	out = append(out, pts[0])
	for i := 1; i < len(pts)-1; i++ {
		prev, cur, next := out[len(out)-1], pts[i], pts[i+1]
		interp := prev.Demand + (next.Demand-prev.Demand)*(cur.Price-prev.Price)/(next.Price-prev.Price)
		if equalDemand(interp, cur.Demand) {
			continue
		}
		out = append(out, cur)
	}
	return append(out, pts[len(pts)-1])
}

func monotone(pts []Point) bool {
	for i := 1; i < len(pts); i++ {
		if pts[i].Demand > pts[i-1].Demand && !equalDemand(pts[i].Demand, pts[i-1].Demand) {
			return false
		}
	}
	return true
}

func equalDemand(a, b float64) bool {
	return scalar.EqualWithinAbsOrRel(a, b, Tolerance, Tolerance)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
