// Package match implements the constrained matching engine: a randomized
// generator that builds a single-cycle gift assignment avoiding same-group
// pairs, and a validator that classifies every invariant violation of a stored
// assignment relation.
//
// The generator does not prove infeasibility. It runs a bounded number of
// attempts and persists each attempt's edges, so a failing run still leaves a
// complete (if invalid) assignment in the store for the validator to describe.
package match
