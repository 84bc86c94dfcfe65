// Package monitor runs the poll loop: fetch predictions for both watched
// stops, correlate them by trip, classify the ETAs, and drive the alert
// dispatcher.
package monitor
