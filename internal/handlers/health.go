package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Health reports liveness plus the state of the two backing stores.
// Always 200; degraded dependencies show up in the body.
func Health(db *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		postgres := "connected"
		if err := db.PingContext(ctx); err != nil {
			postgres = "error"
		}
		redisStatus := "connected"
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisStatus = "error"
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "healthy",
			"service":  "oj-backend",
			"postgres": postgres,
			"redis":    redisStatus,
		})
	}
}
