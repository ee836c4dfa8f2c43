package server

import (
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
	"github.com/smallbiznis/licentia/internal/identity"
	"github.com/smallbiznis/licentia/pkg/telemetry"
)

// RequestMetricsMiddleware counts every handled request by method, matched
// route and response status.
func RequestMetricsMiddleware(metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveAPIRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}

// ActorMiddleware places the caller resolved by the upstream session gate
// onto the request context. Session verification happens before the request
// reaches this service; the gateway forwards the verified identity in
// headers.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := identity.Actor{
			UserID:   parseID(c.GetHeader("X-User-Id")),
			Email:    c.GetHeader("X-User-Email"),
			Phone:    c.GetHeader("X-User-Phone"),
			TenantID: parseID(c.GetHeader("X-Tenant-Id")),
			Role:     directorydomain.Role(c.GetHeader("X-Tenant-Role")),
			DealerID: parseID(c.GetHeader("X-Dealer-Id")),
		}
		if actor.UserID != 0 {
			c.Request = c.Request.WithContext(identity.WithActor(c.Request.Context(), actor))
		}
		c.Next()
	}
}

func snowflakeID(v int64) snowflake.ID { return snowflake.ID(v) }

func parseID(raw string) snowflake.ID {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return snowflake.ID(v)
}
