// Package scheduler triggers the market once per auction interval.
//
// The interval must be an integer multiple of the base simulation tick.
// Triggers are aligned on interval boundaries and never overlap: the next
// trigger is only computed once the current job returned. Time comes from a
// Clock, either the wall clock or a simulated clock that jumps from one
// boundary to the next. Scenario files replay external ctrl_mode/target
// overrides during simulations.
package scheduler
