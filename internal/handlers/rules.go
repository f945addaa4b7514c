package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/pkg/errors"
	"github.com/charlesng35/salesalert/pkg/response"
)

// RuleHandler manages alert rules.
type RuleHandler struct {
	engine *alerting.Engine
}

// NewRuleHandler constructs a rule handler.
func NewRuleHandler(engine *alerting.Engine) *RuleHandler {
	return &RuleHandler{engine: engine}
}

// List returns rules in creation order. ?active=true limits to active rules.
func (h *RuleHandler) List(c *gin.Context) {
	active, err := parseBoolQuery(c, "active")
	if err != nil {
		response.Error(c, err)
		return
	}

	rules, err := h.engine.ListRules(requestContext(c), active != nil && *active)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rules)
}

// Get returns a single rule.
func (h *RuleHandler) Get(c *gin.Context) {
	rule, err := h.engine.GetRule(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rule)
}

// Create validates and stores a rule. Omitted is_active defaults to true.
func (h *RuleHandler) Create(c *gin.Context) {
	var payload struct {
		alerting.Rule
		IsActive *bool `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return
	}

	rule := payload.Rule
	rule.ID = ""
	rule.IsActive = payload.IsActive == nil || *payload.IsActive

	created, err := h.engine.CreateRule(requestContext(c), rule)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, created)
}

type ruleActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// SetActive enables or disables a rule.
func (h *RuleHandler) SetActive(c *gin.Context) {
	var req ruleActiveRequest
	if !bindAndValidate(c, &req) {
		return
	}

	rule, err := h.engine.SetRuleActive(requestContext(c), strings.TrimSpace(c.Param("id")), *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rule)
}

// Delete removes a rule.
func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.engine.DeleteRule(requestContext(c), strings.TrimSpace(c.Param("id"))); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
