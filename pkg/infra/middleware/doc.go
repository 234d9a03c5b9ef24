// Package middleware provides the gin middleware chain used by megaservice:
// panic recovery, request ids, access logging, tracing and CORS, plus the
// health and version endpoints.
//
// Recommended order:
//
//	engine.Use(Recovery(), RequestID(), Tracing(), Logger(), CORS())
package middleware
