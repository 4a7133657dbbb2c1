// Package dispatch fans gather queries out across a bounded pool of workers
// that share one read-only index.
//
// Every query is isolated: a query that fails to load, has no compatible
// sketch, or errors during gather is reported in the Report and never stops
// its siblings. Queries whose sketch is empty are skipped without output.
package dispatch
