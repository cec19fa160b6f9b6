// Package vt adapts the midterm emulator to terminal.Engine for display
// on a text terminal.
//
// The gpu renderer kind maps to a damage-tracking painter that rewrites
// only changed rows and requires a real terminal; canvas repaints the full
// grid on every write; with no renderer loaded, raw output passes
// straight through.
package vt
