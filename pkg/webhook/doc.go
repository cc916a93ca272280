// Package webhook implements component G, the asynchronous dispatcher
// that turns selected hook-bus events into HTTP POSTs against
// operator-configured URLs without ever blocking the hook-dispatch
// goroutine: handlers offer a message onto a bounded channel and return
// immediately, and a dedicated worker pool drains it.
package webhook
