// Package menu maintains the header and footer navigation menus as a forest
// of typed entries.
package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/cmsshop/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound          = errors.New("menu not found")
	ErrTypeMismatch      = errors.New("menu type does not match parent menu type")
	ErrCircularReference = errors.New("circular menu reference")
	ErrHasChildren       = errors.New("menu has child menus")
	ErrInvalidInput      = errors.New("invalid menu input")
	ErrStorage           = errors.New("menu storage failure")
)

const (
	treeCacheKey = "menu:tree"
	treeCacheTTL = 10 * time.Minute
)

// Repository is the persistence contract of the manager. Transaction runs fn
// against a repository bound to a single database transaction. GetForUpdate
// locks the row until that transaction ends.
type Repository interface {
	Transaction(ctx context.Context, fn func(r Repository) error) error
	Get(ctx context.Context, id string) (*models.Menu, error)
	GetForUpdate(ctx context.Context, id string) (*models.Menu, error)
	List(ctx context.Context) ([]models.Menu, error)
	Create(ctx context.Context, m *models.Menu) error
	Save(ctx context.Context, m *models.Menu) error
	Delete(ctx context.Context, id string) error
	CountChildren(ctx context.Context, id string) (int64, error)
}

type Cache interface {
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Del(ctx context.Context, keys ...string) error
}

type Auditor interface {
	Audit(ctx context.Context, action, entityID string, data map[string]interface{}) error
}

type Manager struct {
	repo   Repository
	cache  Cache
	audit  Auditor
	logger *zap.Logger
}

type Option func(*Manager)

func WithCache(c Cache) Option {
	return func(m *Manager) { m.cache = c }
}

func WithAuditor(a Auditor) Option {
	return func(m *Manager) { m.audit = a }
}

func NewManager(repo Repository, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type CreateInput struct {
	Title        string
	URL          string
	MenuType     models.MenuType
	ParentMenuID *string
}

// UpdateInput carries the fields to change. Nil fields keep their value.
// When ParentSet is true ParentMenuID replaces the parent, nil meaning root.
type UpdateInput struct {
	Title        *string
	URL          *string
	MenuType     *models.MenuType
	ParentSet    bool
	ParentMenuID *string
}

func (m *Manager) Create(ctx context.Context, in CreateInput) (*models.Menu, error) {
	title := strings.TrimSpace(in.Title)
	url := strings.TrimSpace(in.URL)
	if title == "" || url == "" {
		return nil, fmt.Errorf("%w: title and url are required", ErrInvalidInput)
	}
	if !in.MenuType.Valid() {
		return nil, fmt.Errorf("%w: unknown menu type %q", ErrInvalidInput, in.MenuType)
	}

	node := &models.Menu{
		ID:           uuid.NewString(),
		Title:        title,
		URL:          url,
		MenuType:     in.MenuType,
		ParentMenuID: normalizeID(in.ParentMenuID),
	}

	err := m.repo.Transaction(ctx, func(r Repository) error {
		if node.ParentMenuID != nil {
			if err := validateParent(ctx, r, node); err != nil {
				return err
			}
		}
		return r.Create(ctx, node)
	})
	if err != nil {
		return nil, err
	}

	m.changed(ctx, "create_menu", node)
	return node, nil
}

func (m *Manager) Update(ctx context.Context, id string, in UpdateInput) (*models.Menu, error) {
	var out *models.Menu

	err := m.repo.Transaction(ctx, func(r Repository) error {
		node, err := r.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if in.Title != nil {
			t := strings.TrimSpace(*in.Title)
			if t == "" {
				return fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
			}
			node.Title = t
		}
		if in.URL != nil {
			u := strings.TrimSpace(*in.URL)
			if u == "" {
				return fmt.Errorf("%w: url must not be empty", ErrInvalidInput)
			}
			node.URL = u
		}

		typeChanged := false
		if in.MenuType != nil {
			if !in.MenuType.Valid() {
				return fmt.Errorf("%w: unknown menu type %q", ErrInvalidInput, *in.MenuType)
			}
			typeChanged = *in.MenuType != node.MenuType
			node.MenuType = *in.MenuType
		}

		parentChanged := false
		if in.ParentSet {
			next := normalizeID(in.ParentMenuID)
			parentChanged = node.Parent() != derefID(next)
			node.ParentMenuID = next
		}

		if typeChanged {
			n, err := r.CountChildren(ctx, node.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: menu %s has %d children of type %q", ErrTypeMismatch, node.ID, n, node.MenuType)
			}
		}
		if node.ParentMenuID != nil && (parentChanged || typeChanged) {
			if err := validateParent(ctx, r, node); err != nil {
				return err
			}
		}

		if err := r.Save(ctx, node); err != nil {
			return err
		}
		out = node
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.changed(ctx, "update_menu", out)
	return out, nil
}

// Delete soft-deletes a childless menu entry.
func (m *Manager) Delete(ctx context.Context, id string) error {
	var deleted *models.Menu

	err := m.repo.Transaction(ctx, func(r Repository) error {
		node, err := r.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		n, err := r.CountChildren(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d children", ErrHasChildren, n)
		}
		if err := r.Delete(ctx, id); err != nil {
			return err
		}
		deleted = node
		return nil
	})
	if err != nil {
		return err
	}

	m.changed(ctx, "delete_menu", deleted)
	return nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Menu, error) {
	return m.repo.Get(ctx, id)
}

// List returns every live entry in creation order.
func (m *Manager) List(ctx context.Context) ([]models.Menu, error) {
	return m.repo.List(ctx)
}

// Tree returns the menu forest, served from the cache when possible.
func (m *Manager) Tree(ctx context.Context) ([]*TreeNode, error) {
	if m.cache != nil {
		var cached []*TreeNode
		if err := m.cache.GetJSON(ctx, treeCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	nodes, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	tree := BuildTree(nodes)

	if m.cache != nil {
		if err := m.cache.SetJSON(ctx, treeCacheKey, tree, treeCacheTTL); err != nil {
			m.logger.Warn("Failed to cache menu tree", zap.Error(err))
		}
	}
	return tree, nil
}

func (m *Manager) changed(ctx context.Context, action string, node *models.Menu) {
	if m.cache != nil {
		if err := m.cache.Del(ctx, treeCacheKey); err != nil {
			m.logger.Warn("Failed to invalidate menu tree cache", zap.Error(err))
		}
	}
	if m.audit != nil {
		data := map[string]interface{}{
			"title":          node.Title,
			"url":            node.URL,
			"menu_type":      string(node.MenuType),
			"parent_menu_id": node.Parent(),
		}
		if err := m.audit.Audit(ctx, action, node.ID, data); err != nil {
			m.logger.Warn("Failed to write audit log", zap.String("action", action), zap.Error(err))
		}
	}
	m.logger.Info("Menu changed", zap.String("action", action), zap.String("menu_id", node.ID))
}

// validateParent checks that node's parent exists, has the same menu type and
// is not a descendant of node. The parent and every ancestor visited are
// locked, so a concurrent reparent or delete of any of them waits for this
// transaction.
func validateParent(ctx context.Context, r Repository, node *models.Menu) error {
	parent, err := r.GetForUpdate(ctx, *node.ParentMenuID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: parent %s", ErrNotFound, *node.ParentMenuID)
		}
		return err
	}
	if parent.MenuType != node.MenuType {
		return fmt.Errorf("%w: parent is %q, menu is %q", ErrTypeMismatch, parent.MenuType, node.MenuType)
	}

	all, err := r.List(ctx)
	if err != nil {
		return err
	}

	var lookupErr error
	lookup := func(id string) (string, bool) {
		if id == parent.ID {
			return parent.Parent(), true
		}
		anc, err := r.GetForUpdate(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				lookupErr = err
			}
			return "", false
		}
		return anc.Parent(), true
	}
	if err := CheckParent(node.ID, parent.ID, lookup, len(all)+1); err != nil {
		return err
	}
	return lookupErr
}

func normalizeID(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}

func derefID(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}
