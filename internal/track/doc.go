// Package track defines the static vocabulary of the wayside layer: block
// identifiers, signal aspects, switch and crossing topology, and the per-line
// presets a controller is constructed from.
//
// Everything in this package is immutable after construction. Runtime state
// (occupancy, commanded values, switch positions) lives in internal/registry;
// this package only answers structural questions such as "which blocks does
// switch 77 connect" or "which crossing guards block 19".
package track
