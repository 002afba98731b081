// Package report turns stored benchmark results into summaries, terminal
// charts and PNG/SVG figures.
package report
