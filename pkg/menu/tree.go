package menu

import (
	"sort"
	"time"

	"github.com/example/cmsshop/pkg/models"
)

// ParentLookup reports the parent id of a node ("" for a root) and whether
// the node exists.
type ParentLookup func(id string) (parent string, ok bool)

// CheckParent walks the ancestry of parentID and fails with
// ErrCircularReference if nodeID would become its own ancestor. The walk takes
// at most limit steps, so corrupted data cannot make it loop forever.
func CheckParent(nodeID, parentID string, lookup ParentLookup, limit int) error {
	if parentID == "" {
		return nil
	}
	if parentID == nodeID {
		return ErrCircularReference
	}

	current := parentID
	for hops := 0; hops < limit; hops++ {
		parent, ok := lookup(current)
		if !ok || parent == "" {
			return nil
		}
		if parent == nodeID {
			return ErrCircularReference
		}
		current = parent
	}
	return ErrCircularReference
}

// Arena indexes a flat set of menu rows by id.
type Arena struct {
	nodes []models.Menu
	index map[string]int
}

func NewArena(nodes []models.Menu) *Arena {
	a := &Arena{
		nodes: nodes,
		index: make(map[string]int, len(nodes)),
	}
	for i := range nodes {
		a.index[nodes[i].ID] = i
	}
	return a
}

func (a *Arena) Len() int {
	return len(a.nodes)
}

func (a *Arena) Get(id string) (*models.Menu, bool) {
	i, ok := a.index[id]
	if !ok {
		return nil, false
	}
	return &a.nodes[i], true
}

// ParentOf satisfies ParentLookup.
func (a *Arena) ParentOf(id string) (string, bool) {
	n, ok := a.Get(id)
	if !ok {
		return "", false
	}
	return n.Parent(), true
}

// TreeNode is a menu entry with its children materialized.
type TreeNode struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	URL          string          `json:"url"`
	MenuType     models.MenuType `json:"menu_type"`
	ParentMenuID *string         `json:"parent_menu_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Children     []*TreeNode     `json:"children"`
}

// BuildTree nests the flat rows under their parents. Siblings keep creation
// order. Rows whose parent is missing from the set are treated as roots; rows
// caught in a cycle are unreachable from any root and are left out.
func BuildTree(nodes []models.Menu) []*TreeNode {
	ordered := make([]models.Menu, len(nodes))
	copy(ordered, nodes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	arena := NewArena(ordered)
	children := make(map[string][]*TreeNode, len(ordered))
	roots := make([]*TreeNode, 0)

	for i := range ordered {
		n := &ordered[i]
		tn := &TreeNode{
			ID:           n.ID,
			Title:        n.Title,
			URL:          n.URL,
			MenuType:     n.MenuType,
			ParentMenuID: n.ParentMenuID,
			CreatedAt:    n.CreatedAt,
			Children:     make([]*TreeNode, 0),
		}
		parent := n.Parent()
		if _, ok := arena.Get(parent); parent == "" || !ok {
			roots = append(roots, tn)
			continue
		}
		children[parent] = append(children[parent], tn)
	}

	visited := make(map[string]bool, len(ordered))
	queue := append([]*TreeNode(nil), roots...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n.ID] {
			continue
		}
		visited[n.ID] = true

		for _, c := range children[n.ID] {
			if visited[c.ID] {
				continue
			}
			n.Children = append(n.Children, c)
			queue = append(queue, c)
		}
	}

	return roots
}
