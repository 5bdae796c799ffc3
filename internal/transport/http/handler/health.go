package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/bootstrap"
)

type HealthHandler struct {
	app *bootstrap.App
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.app.StartedAt).Seconds()),
	}

	dbOK := false
	if h.app.MySQL != nil {
		if sqlDB, err := h.app.MySQL.DB(); err == nil {
			dbOK = sqlDB.PingContext(ctx) == nil
		}
	}
	status["mysql"] = dbOK

	redisOK := h.app.Redis != nil && h.app.Redis.Ping(ctx).Err() == nil
	status["redis"] = redisOK

	mqOK := h.app.MQConn != nil && !h.app.MQConn.IsClosed()
	status["rabbitmq"] = mqOK

	code := http.StatusOK
	if !dbOK || !redisOK || !mqOK {
		code = http.StatusServiceUnavailable
		status["status"] = "degraded"
	}
	c.JSON(code, status)
}
