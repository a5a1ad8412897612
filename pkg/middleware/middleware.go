// Package middleware holds the HTTP middleware shared by modules: request
// logging, panic recovery and CORS.
package middleware

import "net/http"

// Func wraps a handler.
type Func = func(http.Handler) http.Handler

// Chain is an ordered middleware stack. The first entry is outermost.
type Chain []Func

// Use appends middleware to the end of the chain.
func (c *Chain) Use(fns ...Func) {
	*c = append(*c, fns...)
}

// Then wraps h with every middleware in the chain.
func (c Chain) Then(h http.Handler) http.Handler {
	for i := len(c) - 1; i >= 0; i-- {
		h = c[i](h)
	}
	return h
}
