package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/coursepay/internal/access/domain"
	orderdomain "github.com/smallbiznis/coursepay/internal/order/domain"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrInternal           = errors.New("internal_error")
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
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	var promoErr *orderdomain.PromoError
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorResponse{Error: ErrInternal.Error()}
	case errors.As(err, &promoErr):
		return http.StatusBadRequest, errorResponse{
			Error:  orderdomain.ErrPromoInvalid.Error(),
			Reason: string(promoErr.Reason),
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorResponse{Error: ErrInvalidRequest.Error()}
	case errors.Is(err, orderdomain.ErrInvalidEmail),
		errors.Is(err, accessdomain.ErrInvalidEmail):
		return http.StatusBadRequest, errorResponse{Error: orderdomain.ErrInvalidEmail.Error()}
	case errors.Is(err, orderdomain.ErrProductNotFound):
		return http.StatusNotFound, errorResponse{Error: orderdomain.ErrProductNotFound.Error()}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: ErrNotFound.Error()}
	case errors.Is(err, accessdomain.ErrMagicLinkInvalid),
		errors.Is(err, accessdomain.ErrMagicLinkExpired),
		errors.Is(err, accessdomain.ErrMagicLinkConsumed):
		return http.StatusUnauthorized, errorResponse{Error: err.Error()}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, accessdomain.ErrInvalidCredentials),
		errors.Is(err, accessdomain.ErrInvalidSession),
		errors.Is(err, accessdomain.ErrSessionExpired),
		errors.Is(err, accessdomain.ErrSessionRevoked):
		return http.StatusUnauthorized, errorResponse{Error: ErrUnauthorized.Error()}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: ErrRateLimited.Error()}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, orderdomain.ErrGatewayNotReady):
		return http.StatusServiceUnavailable, errorResponse{Error: ErrServiceUnavailable.Error()}
	default:
		return http.StatusInternalServerError, errorResponse{Error: ErrInternal.Error()}
	}
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server", payload.Error
	case status == http.StatusUnauthorized:
		return "auth", payload.Error
	default:
		return "client", payload.Error
	}
}
