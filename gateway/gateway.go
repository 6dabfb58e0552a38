// Package gateway is the HTTP API of the service.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/example/cmsshop/docs"
	"github.com/example/cmsshop/pkg/catalog"
	"github.com/example/cmsshop/pkg/checkout"
	"github.com/example/cmsshop/pkg/config"
	"github.com/example/cmsshop/pkg/menu"
	"github.com/example/cmsshop/pkg/models"
	"github.com/example/cmsshop/pkg/reconcile"
	"github.com/example/cmsshop/pkg/repository"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

type MenuService interface {
	Create(ctx context.Context, in menu.CreateInput) (*models.Menu, error)
	Update(ctx context.Context, id string, in menu.UpdateInput) (*models.Menu, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Menu, error)
	List(ctx context.Context) ([]models.Menu, error)
	Tree(ctx context.Context) ([]*menu.TreeNode, error)
}

type CatalogService interface {
	CreateProduct(ctx context.Context, in catalog.ProductInput) (*models.Product, error)
	Product(ctx context.Context, id string) (*models.Product, error)
	Products(ctx context.Context, q catalog.Query) ([]models.Product, error)
	UpdateVariant(ctx context.Context, id string, in catalog.VariantUpdate) (*models.Variant, error)
	CreateAddress(ctx context.Context, userID string, in catalog.AddressInput) (*models.Address, error)
	Addresses(ctx context.Context, userID string) ([]models.Address, error)
	SetPrimaryAddress(ctx context.Context, userID, id string) (*models.Address, error)
}

type CheckoutService interface {
	AddToCart(ctx context.Context, userID, variantID string, qty int) (*models.CartLine, error)
	UpdateCartLine(ctx context.Context, userID, variantID string, qty int) (*models.CartLine, error)
	RemoveCartLine(ctx context.Context, userID, variantID string) error
	Cart(ctx context.Context, userID string) (*checkout.Cart, error)
	PlaceOrder(ctx context.Context, c checkout.Customer) (*checkout.Placement, error)
	Order(ctx context.Context, userID, orderID string) (*models.Order, error)
	Orders(ctx context.Context, userID string) ([]models.Order, error)
	HandlePaymentNotification(ctx context.Context, payload []byte, signature string) error
}

type Reconciler interface {
	Sweep(age time.Duration) (*reconcile.SweepResult, error)
}

type AuditReader interface {
	GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error)
}

// Services bundles the domain services the routes delegate to. Reconciler
// and Audit may be nil, in which case their admin routes report 503.
type Services struct {
	Menus      MenuService
	Catalog    CatalogService
	Checkout   CheckoutService
	Reconciler Reconciler
	Audit      AuditReader
}

type Gateway struct {
	config   *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	services Services
	server   *http.Server
}

func NewGateway(cfg *config.Config, logger *zap.Logger, services Services) *Gateway {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(loggerMiddleware(logger))

	g := &Gateway{
		config:   cfg,
		logger:   logger,
		router:   router,
		services: services,
	}
	g.SetupRoutes()
	return g
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := g.router.Group("/api/v1")
	{
		menus := v1.Group("/menus")
		{
			menus.GET("", g.listMenus)
			menus.GET("/:id", g.getMenu)
			menus.POST("", g.createMenu)
			menus.PUT("/:id", g.updateMenu)
			menus.DELETE("/:id", g.deleteMenu)
		}

		v1.GET("/products", g.listProducts)
		v1.GET("/products/:id", g.getProduct)
		v1.POST("/products", g.createProduct)
		v1.PUT("/variants/:id", g.updateVariant)

		// The processor authenticates itself with the signature header.
		v1.POST("/payments/webhook", g.paymentWebhook)
		v1.POST("/admin/reconcile", g.reconcile)
		v1.GET("/admin/audit/:entity_id", g.auditLog)

		user := v1.Group("", requireUser())
		{
			user.GET("/addresses", g.listAddresses)
			user.POST("/addresses", g.createAddress)
			user.PUT("/addresses/:id/primary", g.setPrimaryAddress)

			user.GET("/cart", g.getCart)
			user.POST("/cart/items", g.addCartItem)
			user.PUT("/cart/items/:variant_id", g.updateCartItem)
			user.DELETE("/cart/items/:variant_id", g.removeCartItem)

			user.POST("/orders", g.placeOrder)
			user.GET("/orders", g.listOrders)
			user.GET("/orders/:id", g.getOrder)
		}
	}

	docs.SwaggerInfo.BasePath = "/api/v1"
	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	addr := g.config.Server.Addr()
	g.server = &http.Server{
		Addr:              addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.logger.Info("Gateway starting", zap.String("address", addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}
