package health

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/numbers-window/internal/ratelimit"
)

const (
	StatusUp       = "UP"
	StatusDegraded = "DEGRADED"
)

// DefaultPingTimeout bounds each dependency check.
const DefaultPingTimeout = time.Second

// Checker defines the interface for checking a dependency's health.
type Checker interface {
	Ping(ctx context.Context) error
}

// RedisChecker adapts redis.Client to Checker interface.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Ping checks Redis connectivity.
func (r *RedisChecker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Handler handles health check operations.
type Handler struct {
	redis       Checker
	pingTimeout time.Duration
	now         func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithRedis makes the handler report Redis connectivity.
func WithRedis(c Checker) Option {
	return func(h *Handler) {
		h.redis = c
	}
}

// WithPingTimeout bounds each dependency check. A dependency that does not
// answer in time is reported unhealthy.
func WithPingTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.pingTimeout = d
	}
}

// WithClock sets the time source for the reported timestamp.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a new health handler. Without WithRedis the service is
// reported UP unconditionally.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{pingTimeout: DefaultPingTimeout, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Response is the response for health check endpoint.
type Response struct {
	Body struct {
		Status    string    `doc:"UP, or DEGRADED when a dependency is unhealthy" example:"UP" json:"status"`
		Timestamp time.Time `doc:"Time of the check"                              json:"timestamp"`
		Redis     string    `doc:"Redis connectivity, when configured"            json:"redis,omitempty"`
	}
}

// Check performs a health check of the application and its dependencies.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	resp := &Response{}
	resp.Body.Status = StatusUp
	resp.Body.Timestamp = h.now().UTC()

	if h.redis == nil {
		return resp, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
	defer cancel()

	if err := h.redis.Ping(ctx); err != nil {
		resp.Body.Redis = "unhealthy"
		resp.Body.Status = StatusDegraded
	} else {
		resp.Body.Redis = "healthy"
	}

	return resp, nil
}

// RegisterRoutes registers health check routes. Health checks are never rate limited.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Service health",
		Tags:        []string{"Health"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.Check)
}
