package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/alerting"
	iauth "github.com/charlesng35/salesalert/internal/auth"
	"github.com/charlesng35/salesalert/internal/cache"
	"github.com/charlesng35/salesalert/internal/middleware"
	"github.com/charlesng35/salesalert/pkg/errors"
	"github.com/charlesng35/salesalert/pkg/response"
)

// IdempotencyKeyHeader lets callers retry a trigger without duplicating it.
const IdempotencyKeyHeader = "Idempotency-Key"

// Triggerer runs an event through the alerting pipeline.
type Triggerer interface {
	Trigger(ctx context.Context, event alerting.Event) (*alerting.TriggerResult, error)
}

// TriggerHandler accepts CRM events over HTTP.
type TriggerHandler struct {
	engine Triggerer
	claims cache.Claimer
	ttl    time.Duration
}

// NewTriggerHandler constructs a trigger handler. A nil claimer disables
// idempotency keys.
func NewTriggerHandler(engine Triggerer, claims cache.Claimer, ttl time.Duration) *TriggerHandler {
	return &TriggerHandler{engine: engine, claims: claims, ttl: ttl}
}

type triggerRequest struct {
	UserID  string         `json:"user_id"`
	Type    string         `json:"type" validate:"required"`
	Title   string         `json:"title" validate:"required,max=200"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Source  string         `json:"source"`
}

// Create triggers a notification. Users may only trigger for themselves unless
// they hold the admin role; service callers must name the target user.
func (h *TriggerHandler) Create(c *gin.Context) {
	var req triggerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	userID, ok := h.resolveTarget(c, strings.TrimSpace(req.UserID))
	if !ok {
		return
	}

	event := alerting.Event{
		UserID:  userID,
		Type:    alerting.Type(strings.TrimSpace(req.Type)),
		Title:   req.Title,
		Message: req.Message,
		Data:    req.Data,
		Source:  req.Source,
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if key != "" {
		key = "trigger:" + userID + ":" + key
	}

	var result *alerting.TriggerResult
	err := cache.Once(requestContext(c), h.claims, key, h.ttl, func(ctx context.Context) error {
		var err error
		result, err = h.engine.Trigger(ctx, event)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, result)
}

func (h *TriggerHandler) resolveTarget(c *gin.Context, requested string) (string, bool) {
	if middleware.IsServiceCaller(c) {
		if requested == "" {
			response.Error(c, errors.NewValidation("user_id is required"))
			return "", false
		}
		return requested, true
	}

	caller, ok := currentUser(c)
	if !ok {
		return "", false
	}
	if requested == "" || requested == caller {
		return caller, true
	}
	if claims, ok := middleware.ClaimsFrom(c); ok && claims.HasRole(iauth.RoleAdmin) {
		return requested, true
	}
	response.Error(c, errors.ErrForbidden)
	return "", false
}
