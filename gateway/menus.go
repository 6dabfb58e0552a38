package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/example/cmsshop/pkg/menu"
	"github.com/example/cmsshop/pkg/models"
	"github.com/gin-gonic/gin"
)

// optionalID tells an absent field apart from an explicit null.
type optionalID struct {
	Set   bool
	Value *string
}

func (o *optionalID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

type createMenuRequest struct {
	Title        string          `json:"title"`
	URL          string          `json:"url"`
	MenuType     models.MenuType `json:"menu_type"`
	ParentMenuID *string         `json:"parent_menu_id"`
}

type updateMenuRequest struct {
	Title        *string          `json:"title"`
	URL          *string          `json:"url"`
	MenuType     *models.MenuType `json:"menu_type"`
	ParentMenuID optionalID       `json:"parent_menu_id"`
}

func (g *Gateway) listMenus(c *gin.Context) {
	switch c.DefaultQuery("view", "flat") {
	case "flat":
		menus, err := g.services.Menus.List(c.Request.Context())
		if err != nil {
			g.fail(c, err)
			return
		}
		if menus == nil {
			menus = []models.Menu{}
		}
		c.JSON(http.StatusOK, menus)
	case "tree":
		tree, err := g.services.Menus.Tree(c.Request.Context())
		if err != nil {
			g.fail(c, err)
			return
		}
		if tree == nil {
			tree = []*menu.TreeNode{}
		}
		c.JSON(http.StatusOK, tree)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "view must be flat or tree"})
	}
}

func (g *Gateway) getMenu(c *gin.Context) {
	m, err := g.services.Menus.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (g *Gateway) createMenu(c *gin.Context) {
	var req createMenuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := g.services.Menus.Create(c.Request.Context(), menu.CreateInput{
		Title:        req.Title,
		URL:          req.URL,
		MenuType:     req.MenuType,
		ParentMenuID: req.ParentMenuID,
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (g *Gateway) updateMenu(c *gin.Context) {
	var req updateMenuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := g.services.Menus.Update(c.Request.Context(), c.Param("id"), menu.UpdateInput{
		Title:        req.Title,
		URL:          req.URL,
		MenuType:     req.MenuType,
		ParentSet:    req.ParentMenuID.Set,
		ParentMenuID: req.ParentMenuID.Value,
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (g *Gateway) deleteMenu(c *gin.Context) {
	if err := g.services.Menus.Delete(c.Request.Context(), c.Param("id")); err != nil {
		g.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
