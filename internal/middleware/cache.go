package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CacheConfig controls the Cache-Control header of successful GET responses
type CacheConfig struct {
	MaxAge  int
	Private bool
	NoStore bool
	Vary    []string
}

// PublicCatalogCache suits anonymous catalog reads (especialidades, especialistas)
func PublicCatalogCache(maxAge int) CacheConfig {
	return CacheConfig{MaxAge: maxAge, Vary: []string{"Accept"}}
}

// PrivateNoStore keeps authenticated data, clinical records included, out of shared caches
func PrivateNoStore() CacheConfig {
	return CacheConfig{Private: true, NoStore: true, Vary: []string{"Authorization"}}
}

// Cache sets cache headers after the handler ran. Writes and errors are never cacheable.
func Cache(config CacheConfig) gin.HandlerFunc {
	directives := make([]string, 0, 3)
	if config.Private {
		directives = append(directives, "private")
	} else {
		directives = append(directives, "public")
	}
	if config.NoStore {
		directives = append(directives, "no-store")
	} else if config.MaxAge > 0 {
		directives = append(directives, "max-age="+strconv.Itoa(config.MaxAge))
	}
	value := strings.Join(directives, ", ")
	vary := strings.Join(config.Vary, ", ")

	return func(c *gin.Context) {
		// headers must be in place before the handler writes the body
		if c.Request.Method == "GET" {
			c.Header("Cache-Control", value)
		} else {
			c.Header("Cache-Control", "no-store")
		}
		if vary != "" {
			c.Header("Vary", vary)
		}
		c.Next()
	}
}
