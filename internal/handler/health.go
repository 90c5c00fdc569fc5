package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/techserve/support-api/internal/payment"
)

type HealthHandler struct {
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	amqpConn    *amqp.Connection
	gateway     *payment.Client
}

func NewHealthHandler(dbPool *pgxpool.Pool, redisClient *redis.Client, amqpConn *amqp.Connection, gateway *payment.Client) *HealthHandler {
	return &HealthHandler{dbPool: dbPool, redisClient: redisClient, amqpConn: amqpConn, gateway: gateway}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "support-api"})
}

// Readyz reports every dependency, not just the first broken one, so a single
// probe response shows the whole picture. The payment gateway has no ping
// endpoint; its mode is reported instead so a misdeployed test key is visible.
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()

	deps := gin.H{}
	ready := true

	if err := h.dbPool.Ping(ctx); err != nil {
		deps["postgres"] = "unavailable"
		ready = false
	} else {
		deps["postgres"] = "connected"
	}

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		deps["redis"] = "unavailable"
		ready = false
	} else {
		deps["redis"] = "connected"
	}

	if h.amqpConn.IsClosed() {
		deps["rabbitmq"] = "unavailable"
		ready = false
	} else {
		deps["rabbitmq"] = "connected"
	}

	if h.gateway.TestMode() {
		deps["payment_gateway"] = "test mode"
	} else {
		deps["payment_gateway"] = "live"
	}

	status := http.StatusOK
	deps["status"] = "ok"
	if !ready {
		status = http.StatusServiceUnavailable
		deps["status"] = "degraded"
	}
	c.JSON(status, deps)
}
