// Package alert evaluates sensor readings against configured thresholds
// and manages the resulting alert records.
//
// Threshold evaluation is pure: Thresholds.Check turns one reading into
// at most one violation. The Service persists violations, mirrors them on
// the realtime bus for live dashboards, and ingests alerts published by
// the edge devices themselves. Resolution is explicit and audited with
// who resolved and when.
package alert
