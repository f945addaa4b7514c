package handlers

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/cache"
	appErrors "github.com/charlesng35/salesalert/pkg/errors"
	"github.com/charlesng35/salesalert/pkg/response"
	appValidator "github.com/charlesng35/salesalert/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewValidation(formatValidationError(err)...))
		return false
	}

	return true
}

func formatValidationError(err error) []string {
	if err == nil {
		return []string{"invalid request payload"}
	}

	var ve appValidator.ValidationErrors
	if !stderrors.As(err, &ve) || len(ve) == 0 {
		return []string{"invalid request payload"}
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		field := prettifyFieldName(failure.Field)
		switch failure.Tag {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, failure.Param))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, failure.Param))
		case "hhmm":
			messages = append(messages, fmt.Sprintf("%s must be a HH:MM time", field))
		default:
			if failure.Param != "" {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
			} else {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
			}
		}
	}
	return messages
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(name)
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBoolQuery(c *gin.Context, key string) (*bool, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil, appErrors.NewBadRequest(fmt.Sprintf("%s must be true or false", key))
	}
	return &parsed, nil
}

// translateError maps domain errors onto API errors.
func translateError(err error) error {
	var validation *alerting.ValidationError
	switch {
	case err == nil:
		return nil
	case stderrors.As(err, &validation):
		return appErrors.NewValidation(validation.Problems...)
	case stderrors.Is(err, alerting.ErrNotFound):
		return appErrors.ErrNotFound
	case stderrors.Is(err, alerting.ErrDuplicateRule):
		return appErrors.ErrConflict.WithDetails("a rule with this name already exists")
	case stderrors.Is(err, cache.ErrDuplicate):
		return appErrors.ErrDuplicateTrigger
	}
	return appErrors.FromError(err)
}

// respondError writes err after translating domain errors.
func respondError(c *gin.Context, err error) {
	response.Error(c, translateError(err))
}
