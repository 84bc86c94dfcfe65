// Package stream fans device and poll events out to websocket
// subscribers.
package stream
