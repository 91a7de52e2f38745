// security.go adds protective HTTP response headers. The JSON API and the served avatar
// files use different profiles because avatars are embedded by the console from another origin.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// HSTSMaxAge is the Strict-Transport-Security max-age in seconds; 0 disables HSTS.
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	// FrameOptions is the X-Frame-Options value (DENY, SAMEORIGIN); empty omits it.
	FrameOptions          string
	ContentSecurityPolicy string
	ReferrerPolicy        string
	PermissionsPolicy     string
	// CrossOriginResourcePolicy is same-origin for the API and cross-origin for assets.
	CrossOriginResourcePolicy string
}

// APISecurityHeadersConfig returns headers for JSON endpoints
func APISecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		HSTSMaxAge:                31536000,
		HSTSIncludeSubdomains:     true,
		FrameOptions:              "DENY",
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:            "no-referrer",
		CrossOriginResourcePolicy: "same-origin",
	}
}

// AssetSecurityHeadersConfig returns headers for stored files such as profile pictures.
func AssetSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		HSTSMaxAge:                31536000,
		HSTSIncludeSubdomains:     true,
		FrameOptions:              "DENY",
		ContentSecurityPolicy:     "default-src 'none'; img-src 'self'; sandbox",
		ReferrerPolicy:            "no-referrer",
		PermissionsPolicy:         "geolocation=(), microphone=(), camera=()",
		CrossOriginResourcePolicy: "cross-origin",
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		if config.FrameOptions != "" {
			h.Set("X-Frame-Options", config.FrameOptions)
		}
		if config.ContentSecurityPolicy != "" {
			h.Set("Content-Security-Policy", config.ContentSecurityPolicy)
		}
		if config.ReferrerPolicy != "" {
			h.Set("Referrer-Policy", config.ReferrerPolicy)
		}
		if config.PermissionsPolicy != "" {
			h.Set("Permissions-Policy", config.PermissionsPolicy)
		}
		if config.CrossOriginResourcePolicy != "" {
			h.Set("Cross-Origin-Resource-Policy", config.CrossOriginResourcePolicy)
		}
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")

		c.Next()
	}
}
