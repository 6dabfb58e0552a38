package gateway

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/example/cmsshop/pkg/checkout"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxWebhookBody   = 64 << 10
	defaultUnpaidAge = 15 * time.Minute
)

type cartItemRequest struct {
	VariantID string `json:"variant_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (g *Gateway) getCart(c *gin.Context) {
	cart, err := g.services.Checkout.Cart(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (g *Gateway) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	line, err := g.services.Checkout.AddToCart(c.Request.Context(), c.GetString(ctxUserID), req.VariantID, req.Quantity)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (g *Gateway) updateCartItem(c *gin.Context) {
	var req cartQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	line, err := g.services.Checkout.UpdateCartLine(c.Request.Context(), c.GetString(ctxUserID), c.Param("variant_id"), req.Quantity)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (g *Gateway) removeCartItem(c *gin.Context) {
	if err := g.services.Checkout.RemoveCartLine(c.Request.Context(), c.GetString(ctxUserID), c.Param("variant_id")); err != nil {
		g.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// placeOrder answers 201 with the order and its payment session. When the
// order was written but the session could not be opened it answers 502 and
// still includes the order, which the reconcile job will pick up.
func (g *Gateway) placeOrder(c *gin.Context) {
	p, err := g.services.Checkout.PlaceOrder(c.Request.Context(), checkout.Customer{
		ID:    c.GetString(ctxUserID),
		Email: c.GetString(ctxUserEmail),
	})
	if err != nil {
		if p != nil && errors.Is(err, checkout.ErrProcessor) {
			g.logger.Warn("Order placed without payment session",
				zap.String("order_id", p.Order.ID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "order": p.Order})
			return
		}
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (g *Gateway) listOrders(c *gin.Context) {
	orders, err := g.services.Checkout.Orders(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (g *Gateway) getOrder(c *gin.Context) {
	o, err := g.services.Checkout.Order(c.Request.Context(), c.GetString(ctxUserID), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// paymentWebhook rejects only notifications whose signature does not verify.
// Processing failures are logged by the engine and acknowledged so the
// processor does not retry them.
func (g *Gateway) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	err = g.services.Checkout.HandlePaymentNotification(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if errors.Is(err, checkout.ErrInvalidSignature) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (g *Gateway) reconcile(c *gin.Context) {
	if g.services.Reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation is not running"})
		return
	}
	age := defaultUnpaidAge
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "older_than must be a non-negative duration"})
			return
		}
		age = d
	}

	res, err := g.services.Reconciler.Sweep(age)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
