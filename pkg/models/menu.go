package models

import (
	"time"

	"gorm.io/gorm"
)

type MenuType string

const (
	MenuTypeHeader MenuType = "Header Menu"
	MenuTypeFooter MenuType = "Footer Menu"
)

func (t MenuType) Valid() bool {
	return t == MenuTypeHeader || t == MenuTypeFooter
}

// Menu is one entry of a navigation menu. Entries form a forest through
// ParentMenuID; a child always shares its parent's MenuType.
type Menu struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title        string         `gorm:"type:varchar(255);not null" json:"title"`
	URL          string         `gorm:"column:url;type:varchar(512);not null" json:"url"`
	MenuType     MenuType       `gorm:"type:varchar(32);not null;index" json:"menu_type"`
	ParentMenuID *string        `gorm:"type:varchar(36);index" json:"parent_menu_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Menu) TableName() string {
	return "menus"
}

// Parent returns the parent id, or "" for a root entry.
func (m *Menu) Parent() string {
	if m.ParentMenuID == nil {
		return ""
	}
	return *m.ParentMenuID
}
