package restgateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/tiercache"
)

// gateway binds a CacheEngine to gin handler methods. The registered routes
// operate on string keys/values, matching the single (K, V) instantiation
// the loaderwriter adapter package's factories are registered for.
type gateway struct {
	engine *tiercache.CacheEngine[string, string]
}

func statusFor(err error) int {
	var te *tiercache.Error
	if errors.As(err, &te) {
		switch te.Code {
		case tiercache.Lifecycle:
			return http.StatusServiceUnavailable
		case tiercache.Argument:
			return http.StatusBadRequest
		default:
			return http.StatusBadGateway
		}
	}
	var be *tiercache.BulkError[string]
	if errors.As(err, &be) {
		return http.StatusMultiStatus
	}
	return http.StatusInternalServerError
}

func (g *gateway) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"message": err.Error()})
}

type valueBody struct {
	Value string `json:"value" binding:"required"`
}

type replaceBody struct {
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue" binding:"required"`
}

// GetValue godoc
// @Summary GetValue returns the value mapped to key
// @Description GetValue reads through the loader on a cache miss.
// @Tags Cache
// @Produce json
// @Param key path string true "cache key"
// @Success 200 {object} valueBody
// @Failure 404 {object} map[string]any
// @Router /cache/{key} [get]
// @Security Bearer
func (g *gateway) GetValue(c *gin.Context) {
	key := c.Param("key")
	v, found, err := g.engine.Get(c.Request.Context(), key)
	if err != nil {
		g.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"message": "key not found"})
		return
	}
	c.JSON(http.StatusOK, valueBody{Value: v})
}

// ContainsKey godoc
// @Summary ContainsKey reports whether key has a cached mapping
// @Tags Cache
// @Produce json
// @Param key path string true "cache key"
// @Success 200 {object} map[string]bool
// @Router /cache/{key}/contains [get]
// @Security Bearer
func (g *gateway) ContainsKey(c *gin.Context) {
	key := c.Param("key")
	present, err := g.engine.ContainsKey(c.Request.Context(), key)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"present": present})
}

// PutValue godoc
// @Summary PutValue writes key/value through the cache
// @Tags Cache
// @Accept json
// @Param key path string true "cache key"
// @Param body body valueBody true "value to store"
// @Success 204
// @Router /cache/{key} [put]
// @Security Bearer
func (g *gateway) PutValue(c *gin.Context) {
	key := c.Param("key")
	var body valueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err := g.engine.Put(c.Request.Context(), key, body.Value); err != nil {
		g.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PutIfAbsentValue godoc
// @Summary PutIfAbsentValue installs value only if key is currently absent
// @Tags Cache
// @Accept json
// @Produce json
// @Param key path string true "cache key"
// @Param body body valueBody true "value to store if absent"
// @Success 200 {object} valueBody
// @Router /cache/{key}/if-absent [post]
// @Security Bearer
func (g *gateway) PutIfAbsentValue(c *gin.Context) {
	key := c.Param("key")
	var body valueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	v, _, err := g.engine.PutIfAbsent(c.Request.Context(), key, body.Value, nil)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, valueBody{Value: v})
}

// RemoveValue godoc
// @Summary RemoveValue deletes key unconditionally
// @Tags Cache
// @Param key path string true "cache key"
// @Success 204
// @Router /cache/{key} [delete]
// @Security Bearer
func (g *gateway) RemoveValue(c *gin.Context) {
	key := c.Param("key")
	if err := g.engine.Remove(c.Request.Context(), key); err != nil {
		g.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveIfMatchValue godoc
// @Summary RemoveIfMatchValue deletes key only if its value equals expected
// @Tags Cache
// @Accept json
// @Produce json
// @Param key path string true "cache key"
// @Param body body valueBody true "expected current value"
// @Success 200 {object} map[string]bool
// @Router /cache/{key}/remove-if-match [post]
// @Security Bearer
func (g *gateway) RemoveIfMatchValue(c *gin.Context) {
	key := c.Param("key")
	var body valueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	removed, err := g.engine.RemoveIfMatch(c.Request.Context(), key, body.Value)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ReplaceValue godoc
// @Summary ReplaceValue installs newValue only if key currently has a mapping
// @Tags Cache
// @Accept json
// @Produce json
// @Param key path string true "cache key"
// @Param body body replaceBody true "new value"
// @Success 200 {object} map[string]bool
// @Router /cache/{key}/replace [put]
// @Security Bearer
func (g *gateway) ReplaceValue(c *gin.Context) {
	key := c.Param("key")
	var body replaceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	_, replaced, err := g.engine.Replace(c.Request.Context(), key, body.NewValue)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"replaced": replaced})
}

// ReplaceIfMatchValue godoc
// @Summary ReplaceIfMatchValue installs newValue only if the current value equals oldValue
// @Tags Cache
// @Accept json
// @Produce json
// @Param key path string true "cache key"
// @Param body body replaceBody true "old and new value"
// @Success 200 {object} map[string]bool
// @Router /cache/{key}/replace-if-match [put]
// @Security Bearer
func (g *gateway) ReplaceIfMatchValue(c *gin.Context) {
	key := c.Param("key")
	var body replaceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	replaced, err := g.engine.ReplaceIfMatch(c.Request.Context(), key, body.OldValue, body.NewValue)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"replaced": replaced})
}

// GetAllValues godoc
// @Summary GetAllValues reads a comma-separated batch of keys
// @Tags Cache
// @Produce json
// @Param keys query string true "comma-separated keys"
// @Success 200 {object} map[string]string
// @Failure 207 {object} map[string]any
// @Router /cache [get]
// @Security Bearer
func (g *gateway) GetAllValues(c *gin.Context) {
	raw := c.Query("keys")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "keys query parameter is required"})
		return
	}
	keys := strings.Split(raw, ",")
	values, err := g.engine.GetAll(c.Request.Context(), keys, false)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, values)
}

// PutAllValues godoc
// @Summary PutAllValues writes a batch of key/value entries through the cache
// @Tags Cache
// @Accept json
// @Param body body map[string]string true "entries to store"
// @Success 204
// @Failure 207 {object} map[string]any
// @Router /cache [put]
// @Security Bearer
func (g *gateway) PutAllValues(c *gin.Context) {
	var entries map[string]string
	if err := c.ShouldBindJSON(&entries); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err := g.engine.PutAll(c.Request.Context(), entries); err != nil {
		g.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveAllValues godoc
// @Summary RemoveAllValues deletes a batch of keys
// @Tags Cache
// @Accept json
// @Param body body []string true "keys to remove"
// @Success 204
// @Failure 207 {object} map[string]any
// @Router /cache [delete]
// @Security Bearer
func (g *gateway) RemoveAllValues(c *gin.Context) {
	var keys []string
	if err := c.ShouldBindJSON(&keys); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err := g.engine.RemoveAll(c.Request.Context(), keys); err != nil {
		g.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearCache godoc
// @Summary ClearCache removes every mapping from the cache
// @Tags Cache
// @Success 204
// @Router /cache/clear [post]
// @Security Bearer
func (g *gateway) ClearCache(c *gin.Context) {
	if err := g.engine.Clear(c.Request.Context()); err != nil {
		g.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
