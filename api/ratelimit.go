// Package api HTTP handlers of the rate limiter
package api

import (
	"context"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/httpx"
	"github.com/KOMKZ/go-yogan-ratelimiter/limiter"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Limiter operations the handlers need, implemented by *limiter.Manager
type Limiter interface {
	CheckAndConsume(ctx context.Context, req limiter.CheckRequest) (*limiter.Decision, error)
	Status(ctx context.Context, k limiter.Key, storageType string, now *time.Time) (*limiter.StatusView, error)
	StatusAll(ctx context.Context, uniqueID, userID, storageType string, now *time.Time) ([]*limiter.StatusView, error)
	Reset(ctx context.Context, k limiter.Key, storageType string) error
	Collector() limiter.MetricsCollector
}

var storageTypes = []interface{}{"", "redis", "plugin_storage", "embedded", "memory", "etcd"}

// CheckRequest POST /v1/ratelimit/check
type CheckRequest struct {
	UniqueID      string   `json:"unique_id"`
	UserID        string   `json:"user_id"`
	ActionType    string   `json:"action_type"`
	AlgorithmType string   `json:"algorithm_type"`
	Rate          *float64 `json:"rate"`
	Capacity      *int64   `json:"capacity"`
	MaxRequests   *int64   `json:"max_requests"`
	WindowSize    *int64   `json:"window_size"`
	StorageType   string   `json:"storage_type"`
}

// Validate only the request shape; parameter values are checked when the config is created
func (r *CheckRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.UniqueID, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.UserID, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.ActionType, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.AlgorithmType, validation.By(func(v interface{}) error {
			s := v.(string)
			if s != "" && !limiter.AlgorithmType(s).Valid() {
				return validation.NewError("validation_unknown_algorithm", "unknown algorithm")
			}
			return nil
		})),
		validation.Field(&r.StorageType, validation.In(storageTypes...)),
	)
}

// KeyRequest query of status and reset
type KeyRequest struct {
	UniqueID    string `form:"unique_id" json:"unique_id"`
	UserID      string `form:"user_id" json:"user_id"`
	ActionType  string `form:"action_type" json:"action_type"`
	StorageType string `form:"storage_type" json:"storage_type"`
}

// Validate action_type is optional for status (lists all actions)
func (r *KeyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.UniqueID, validation.Required),
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.StorageType, validation.In(storageTypes...)),
	)
}

// ResetRequest DELETE /v1/ratelimit/keys
type ResetRequest struct {
	KeyRequest
}

// Validate reset always targets one key
func (r *ResetRequest) Validate() error {
	if err := r.KeyRequest.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.ActionType, validation.Required),
	)
}

// StatusResponse one view, or every registered action when action_type is omitted
type StatusResponse struct {
	Status  *limiter.StatusView   `json:"status,omitempty"`
	Actions []*limiter.StatusView `json:"actions,omitempty"`
}

// ResetResponse reset result
type ResetResponse struct {
	Reset bool `json:"reset"`
}

// StatsResponse in-process decision counters
type StatsResponse struct {
	Series  []*limiter.MetricsSnapshot `json:"series"`
	Corrupt int64                      `json:"corrupt"`
}

// Handler rate limit endpoints
type Handler struct {
	limiter Limiter
}

// NewHandler creates Handler
func NewHandler(l Limiter) *Handler {
	return &Handler{limiter: l}
}

// Register mounts the routes; admin guards the destructive ones (nil = open)
func (h *Handler) Register(r gin.IRouter, admin gin.HandlerFunc) {
	g := r.Group("/v1/ratelimit")
	g.POST("/check", httpx.Wrap(h.Check))
	g.GET("/status", httpx.Wrap(h.Status))
	g.GET("/stats", httpx.Wrap(h.Stats))

	reset := []gin.HandlerFunc{httpx.Wrap(h.Reset)}
	if admin != nil {
		reset = append([]gin.HandlerFunc{admin}, reset...)
	}
	g.DELETE("/keys", reset...)
}

// Check consumes one unit; a rejection is still code 0 with allowed "false"
func (h *Handler) Check(c *gin.Context, req *CheckRequest) (*limiter.Decision, error) {
	return h.limiter.CheckAndConsume(c.Request.Context(), limiter.CheckRequest{
		Key: limiter.Key{
			UniqueID:   req.UniqueID,
			UserID:     req.UserID,
			ActionType: req.ActionType,
		},
		AlgorithmType: limiter.AlgorithmType(req.AlgorithmType),
		Params: limiter.Params{
			Rate:        req.Rate,
			Capacity:    req.Capacity,
			MaxRequests: req.MaxRequests,
			WindowSize:  req.WindowSize,
		},
		StorageType: req.StorageType,
	})
}

// Status read-only projection
func (h *Handler) Status(c *gin.Context, req *KeyRequest) (*StatusResponse, error) {
	ctx := c.Request.Context()
	if req.ActionType == "" {
		views, err := h.limiter.StatusAll(ctx, req.UniqueID, req.UserID, req.StorageType, nil)
		if err != nil {
			return nil, err
		}
		return &StatusResponse{Actions: views}, nil
	}

	view, err := h.limiter.Status(ctx, limiter.Key{
		UniqueID:   req.UniqueID,
		UserID:     req.UserID,
		ActionType: req.ActionType,
	}, req.StorageType, nil)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{Status: view}, nil
}

// Reset deletes config and state of one key
func (h *Handler) Reset(c *gin.Context, req *ResetRequest) (*ResetResponse, error) {
	err := h.limiter.Reset(c.Request.Context(), limiter.Key{
		UniqueID:   req.UniqueID,
		UserID:     req.UserID,
		ActionType: req.ActionType,
	}, req.StorageType)
	if err != nil {
		return nil, err
	}
	return &ResetResponse{Reset: true}, nil
}

// Stats counters since process start
func (h *Handler) Stats(c *gin.Context, _ *struct{}) (*StatsResponse, error) {
	col := h.limiter.Collector()
	return &StatsResponse{Series: col.Snapshots(), Corrupt: col.Corrupt()}, nil
}
