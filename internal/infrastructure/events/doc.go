// Package events fans committed match index writes out to interested
// parties.
//
// A Bus is handed to the index as its publisher. Publish never blocks the
// index: events are queued and delivered from a single goroutine, in commit
// order, to every in-process subscriber (the WebSocket stream) and every
// external sink (NATS). Slow subscribers lose events rather than stall
// delivery.
package events
