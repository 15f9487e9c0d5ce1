package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// BreakerState reports the pricing circuit breaker state.
type BreakerState interface {
	State() string
}

// Health returns a JSON health check response.
// Checks DB and Redis connectivity and reports the pricing breaker. An open
// breaker does not fail the check: quotations degrade to the stale snapshot.
func Health(db *gorm.DB, rdb *redis.Client, precios BreakerState) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}

		redisStatus := "connected"
		if rdb.Ping(ctx).Err() != nil {
			redisStatus = "error"
		}

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"ok":      status == http.StatusOK,
			"db":      dbStatus,
			"redis":   redisStatus,
			"precios": precios.State(),
		})
	}
}
