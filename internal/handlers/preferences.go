package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/pkg/errors"
	"github.com/charlesng35/salesalert/pkg/response"
)

// PreferenceHandler reads and updates delivery preferences.
type PreferenceHandler struct {
	engine *alerting.Engine
}

// NewPreferenceHandler constructs a preference handler.
func NewPreferenceHandler(engine *alerting.Engine) *PreferenceHandler {
	return &PreferenceHandler{engine: engine}
}

// Get returns the caller's preferences, creating defaults on first use.
func (h *PreferenceHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	prefs, err := h.engine.Preferences(requestContext(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, prefs)
}

// Update merges a partial document onto the caller's preferences.
func (h *PreferenceHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var patch alerting.PreferencesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return
	}

	prefs, err := h.engine.UpdatePreferences(requestContext(c), userID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, prefs)
}

// GetGlobal returns the template copied into new users' preferences.
func (h *PreferenceHandler) GetGlobal(c *gin.Context) {
	prefs, err := h.engine.Preferences(requestContext(c), alerting.GlobalPreferencesID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, prefs)
}

// UpdateGlobal patches the global template. Existing users are unaffected.
func (h *PreferenceHandler) UpdateGlobal(c *gin.Context) {
	var patch alerting.PreferencesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return
	}

	prefs, err := h.engine.UpdatePreferences(requestContext(c), alerting.GlobalPreferencesID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, prefs)
}
