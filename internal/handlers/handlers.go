package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"sessionreminders/internal/services"
	"sessionreminders/internal/store"

	"github.com/gin-gonic/gin"
)

// handleError logs err and writes the status its kind maps to
func handleError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrNoEnrollments), errors.Is(err, services.ErrTemplate):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		log.Printf("Error: %s: %v", message, err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	log.Printf("Warning: %s: %v", message, err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	log.Printf("Error: Invalid input: %s", err.Error())
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
}

// Pinger reports whether the store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports OK when the database answers
func HealthHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.Printf("Error: health check failed: %v", err)
			c.String(http.StatusServiceUnavailable, "database unavailable")
			return
		}
		c.String(http.StatusOK, "OK")
	}
}
