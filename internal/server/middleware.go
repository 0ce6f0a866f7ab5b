package server

import (
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mohammed1916/marine-anomaly/internal/logging"
	"github.com/mohammed1916/marine-anomaly/internal/metrics"
)

// HeaderRequestID carries the request id in requests and responses.
const HeaderRequestID = "X-Request-ID"

// requestID assigns every request an id and stores it in the request context
// for request-scoped logs.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// observe logs and times every request.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RequestSeconds.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(began).Seconds())

		log := logging.FromContext(c.Request.Context(), s.log)
		args := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(began),
		}
		if len(c.Errors) > 0 {
			log.Warn("request failed", append(args, "error", c.Errors.Last().Err)...)
			return
		}
		log.Debug("request", args...)
	}
}

// cors allows the configured origins.
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (slices.Contains(s.cfg.AllowOrigins, origin) || slices.Contains(s.cfg.AllowOrigins, "*")) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "*")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
