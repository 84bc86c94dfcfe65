// Package alert grades arrival ETAs into alert levels and turns level
// transitions into device commands.
package alert
