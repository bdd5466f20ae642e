// Package restgateway exposes a tiercache.CacheEngine over HTTP: a gin router
// built from a package-level map of verb/path -> handler, wrapped with a
// bearer-token guard, over the cache's get/put/remove/replace surface.
package restgateway

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// HTTPVerb enumerates the HTTP operations a RestMethod can be registered
// under.
type HTTPVerb int

const (
	// Unknown represents an unspecified HTTP verb.
	Unknown HTTPVerb = iota
	// GET retrieves a resource.
	GET
	// DELETE removes a resource.
	DELETE
	// POST creates or invokes an operation.
	POST
	// PUT replaces or installs a resource.
	PUT
)

// RestMethod describes a route: its HTTP verb, path, and gin handler.
type RestMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler func(c *gin.Context)
}

var restMethods = make(map[string]RestMethod)

// RegisterMethod builds a RestMethod and registers it.
func RegisterMethod(verb HTTPVerb, path string, h func(c *gin.Context)) error {
	return Register(RestMethod{Verb: verb, Path: path, Handler: h})
}

// Register inserts m into the route registry, rejecting duplicate verb+path
// pairs.
func Register(m RestMethod) error {
	key := fmt.Sprintf("%d_%s", m.Verb, m.Path)
	if _, exists := restMethods[key]; exists {
		return fmt.Errorf("can't add %s, an existing handler in REST method map exists", key)
	}
	restMethods[key] = m
	return nil
}

// RestMethods returns the registered routes.
func RestMethods() map[string]RestMethod {
	return restMethods
}
