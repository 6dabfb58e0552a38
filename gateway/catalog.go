package gateway

import (
	"net/http"
	"strconv"

	"github.com/example/cmsshop/pkg/catalog"
	"github.com/gin-gonic/gin"
)

func (g *Gateway) listProducts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	products, err := g.services.Catalog.Products(c.Request.Context(), catalog.Query{
		Q:      c.Query("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "limit": limit, "offset": offset})
}

func (g *Gateway) getProduct(c *gin.Context) {
	p, err := g.services.Catalog.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (g *Gateway) createProduct(c *gin.Context) {
	var req catalog.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := g.services.Catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (g *Gateway) updateVariant(c *gin.Context) {
	var req catalog.VariantUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, err := g.services.Catalog.UpdateVariant(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (g *Gateway) listAddresses(c *gin.Context) {
	out, err := g.services.Catalog.Addresses(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (g *Gateway) createAddress(c *gin.Context) {
	var req catalog.AddressInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := g.services.Catalog.CreateAddress(c.Request.Context(), c.GetString(ctxUserID), req)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (g *Gateway) setPrimaryAddress(c *gin.Context) {
	a, err := g.services.Catalog.SetPrimaryAddress(c.Request.Context(), c.GetString(ctxUserID), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
