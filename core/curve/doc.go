// Package curve implements the piecewise-linear price-quantity function used
// as a bid on the market.
//
// A Curve is a sequence of breakpoints ordered by strictly increasing price.
// Demand is linearly interpolated between breakpoints and clamped to the
// boundary breakpoints outside them. Demand must be non-increasing in price:
// every mutation validates the whole sequence and is rejected with
// ErrNonMonotonic otherwise, which keeps PriceForDemand a true inverse.
//
// Aggregation (AddFunction) and Difference build new curves over the union of
// both operands' breakpoints and merge collinear breakpoints, so summing many
// bids never grows the breakpoint count beyond the number of distinct prices.
package curve
