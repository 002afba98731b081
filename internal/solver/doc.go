// Package solver adapts the backends to benchmark problems.
//
// A Solver declares which problem shapes it accepts. Setup translates a
// problem once, Solve re-reads only the bounds tied to the initial state
// and Solution maps the primal values back through the problem's own
// recovery. Setup and solve wall-clock times and iteration counts are
// kept in Stats.
package solver
