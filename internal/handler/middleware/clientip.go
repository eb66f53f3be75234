package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

const ContextKeyClientIP = "client_ip"

// ClientIP resolves the caller address from header, then the first
// X-Forwarded-For entry, then the connection's remote address. Anything that
// does not parse as an IP resolves to the empty string.
func ClientIP(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyClientIP, resolveClientIP(c, header))
		c.Next()
	}
}

func resolveClientIP(c *gin.Context, header string) string {
	if header != "" {
		if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
			return parseIP(v)
		}
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return parseIP(strings.TrimSpace(first))
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		host = c.Request.RemoteAddr
	}
	return parseIP(host)
}

func parseIP(s string) string {
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}

// ClientIPFrom returns the address stored by ClientIP, or "".
func ClientIPFrom(c *gin.Context) string {
	return c.GetString(ContextKeyClientIP)
}
