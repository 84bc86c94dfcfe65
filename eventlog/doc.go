// Package eventlog provides a bounded in-memory log of device and poll
// activity for diagnostics.
//
// Entries are kept in a fixed-capacity ring: once full, appending evicts the
// oldest entry. The log is safe for concurrent use and supports an optional
// notify hook so a live stream can mirror every append.
package eventlog
