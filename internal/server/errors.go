package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
	ledgerdomain "github.com/andinolabs/canje/internal/ledger/domain"
	"github.com/andinolabs/canje/internal/ratelimit"
	redemptiondomain "github.com/andinolabs/canje/internal/redemption/domain"
	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    err.Error(),
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many redemption attempts",
		}
	case isRetryableError(err):
		// The caller may resubmit with the same request_id; the
		// idempotency record guarantees at-most-once effects.
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "temporarily unavailable, retry with the same request_id",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidReason),
		errors.Is(err, catalogdomain.ErrInvalidReward),
		errors.Is(err, catalogdomain.ErrInvalidPartner),
		errors.Is(err, redemptiondomain.ErrInvalidRequest):
		return true
	default:
		return false
	}
}

// isConflictError covers every outcome that is a well-formed request colliding
// with current state: the caller should not blindly retry.
func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ledgerdomain.ErrInsufficientBalance),
		errors.Is(err, catalogdomain.ErrOutOfStock),
		errors.Is(err, catalogdomain.ErrRewardNotStarted),
		errors.Is(err, catalogdomain.ErrRewardExpired),
		errors.Is(err, catalogdomain.ErrDuplicateSlug),
		errors.Is(err, voucherdomain.ErrInvalidTransition),
		errors.Is(err, voucherdomain.ErrVoucherExpired),
		errors.Is(err, redemptiondomain.ErrConflict):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, ledgerdomain.ErrInsufficientBalance):
		return "balance does not cover the reward cost"
	case errors.Is(err, catalogdomain.ErrOutOfStock):
		return "reward is out of stock"
	case errors.Is(err, catalogdomain.ErrRewardNotStarted):
		return "reward validity window has not opened"
	case errors.Is(err, catalogdomain.ErrRewardExpired):
		return "reward validity window has closed"
	case errors.Is(err, catalogdomain.ErrDuplicateSlug):
		return "slug already in use"
	case errors.Is(err, voucherdomain.ErrInvalidTransition):
		return "voucher state does not allow this operation"
	case errors.Is(err, voucherdomain.ErrVoucherExpired):
		return "voucher has expired"
	case errors.Is(err, redemptiondomain.ErrConflict):
		return "request_id was already used with different parameters"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrRewardNotFound),
		errors.Is(err, catalogdomain.ErrPartnerNotFound),
		errors.Is(err, voucherdomain.ErrVoucherNotFound),
		errors.Is(err, ledgerdomain.ErrEntryNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isRetryableError(err error) bool {
	switch {
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, gorm.ErrInvalidTransaction),
		errors.Is(err, voucherdomain.ErrCodeExhausted):
		return true
	default:
		return false
	}
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
