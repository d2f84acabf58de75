// Package api serves the cached upstream data as JSON.
//
// Handlers only resolve path parameters, call the caches and shape the
// response; the caches are created by the caller and injected with Caches.
package api
