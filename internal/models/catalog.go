package models

import (
	"time"

	"github.com/google/uuid"
)

// Group clusters the items a respondent can opt into at registration.
type Group struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	Name        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_group_name"`
	DisplayName string    `gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (Group) TableName() string { return "groups" }

// Item is one of the things being compared. Items are created during setup and
// never change afterwards.
type Item struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	Name        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_item_identity"`
	DisplayName string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_item_identity"`
	ImagePath   string    `gorm:"type:varchar(1000);not null;uniqueIndex:idx_item_identity"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (Item) TableName() string { return "items" }

type ItemGroup struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	ItemID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_item_group"`
	GroupID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_item_group;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ItemGroup) TableName() string { return "item_groups" }

// CustomItemPair carries an operator assigned weight. Rows only exist when the
// deployment runs with custom weights.
type CustomItemPair struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	GroupID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_custom_pair"`
	Item1ID   string    `gorm:"column:item_1_id;type:varchar(36);not null;uniqueIndex:idx_custom_pair"`
	Item2ID   string    `gorm:"column:item_2_id;type:varchar(36);not null;uniqueIndex:idx_custom_pair"`
	Weight    float64   `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (CustomItemPair) TableName() string { return "custom_item_pairs" }

func NewGroup(name, displayName string) *Group {
	return &Group{
		ID:          uuid.New().String(),
		Name:        name,
		DisplayName: displayName,
	}
}

func NewItem(name, displayName, imagePath string) *Item {
	return &Item{
		ID:          uuid.New().String(),
		Name:        name,
		DisplayName: displayName,
		ImagePath:   imagePath,
	}
}
