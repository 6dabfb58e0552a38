package gateway

import (
	"errors"
	"net/http"

	"github.com/example/cmsshop/pkg/catalog"
	"github.com/example/cmsshop/pkg/checkout"
	"github.com/example/cmsshop/pkg/menu"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByError = []struct {
	err    error
	status int
}{
	{menu.ErrNotFound, http.StatusNotFound},
	{checkout.ErrOrderNotFound, http.StatusNotFound},
	{checkout.ErrVariantNotFound, http.StatusNotFound},
	{checkout.ErrLineNotFound, http.StatusNotFound},
	{catalog.ErrNotFound, http.StatusNotFound},

	{menu.ErrTypeMismatch, http.StatusConflict},
	{menu.ErrCircularReference, http.StatusConflict},
	{menu.ErrHasChildren, http.StatusConflict},
	{checkout.ErrCartStale, http.StatusConflict},
	{checkout.ErrStockExceeded, http.StatusConflict},
	{checkout.ErrUnexpectedPaymentState, http.StatusConflict},

	{menu.ErrInvalidInput, http.StatusBadRequest},
	{catalog.ErrInvalidInput, http.StatusBadRequest},
	{checkout.ErrEmptyCart, http.StatusBadRequest},
	{checkout.ErrAddressRequired, http.StatusBadRequest},
	{checkout.ErrInvalidLine, http.StatusBadRequest},
	{checkout.ErrInvalidQuantity, http.StatusBadRequest},
	{checkout.ErrInvalidSignature, http.StatusBadRequest},
	{checkout.ErrMissingMetadata, http.StatusBadRequest},

	{checkout.ErrUnauthorized, http.StatusForbidden},

	{menu.ErrStorage, http.StatusServiceUnavailable},
	{checkout.ErrStorage, http.StatusServiceUnavailable},
	{catalog.ErrStorage, http.StatusServiceUnavailable},

	{checkout.ErrProcessor, http.StatusBadGateway},
}

func statusFor(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func (g *Gateway) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("Request failed",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
