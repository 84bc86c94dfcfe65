// Package utils provides internal utility functions for the keyroute service.
// This package is not intended to be imported by external code.
//
// It contains:
//   - Time formatting and parsing utilities
//   - Countdown display formatting
package utils
