package api

import (
	"errors"
	"net/http"

	"order-lifecycle/internal/service"
	"order-lifecycle/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps service errors to HTTP status codes. Restoration failures
// are checked first since they also wrap their cause.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrStockRestoration),
		errors.Is(err, service.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrInvalidOperation),
		errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{
		"error":   http.StatusText(status),
		"details": err.Error(),
	}

	var restoreErr *service.RestorationError
	if errors.As(err, &restoreErr) {
		body["items"] = restoreErr.Items
	}

	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		body["details"] = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}
