// Package governance contains the proposal evaluation engine and the
// perpetual monitor loop through which the EXECAI agent identity reviews and
// votes on DAO proposals. Decisions are produced by a fixed first-match rule
// set over the proposal description; each proposal is voted at most once per
// persisted collection.
package governance
