package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// User is a survey respondent. Deployment specific registration fields live in
// Attributes instead of dedicated columns.
type User struct {
	ID         string            `gorm:"primaryKey;type:varchar(36)"`
	Attributes datatypes.JSONMap `gorm:"type:json"`
	// CompletedCycles is nil when the deployment does not use cycles.
	CompletedCycles *int      `gorm:"column:completed_cycles"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (User) TableName() string { return "users" }

type UserGroup struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_group"`
	GroupID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_group"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserGroup) TableName() string { return "user_groups" }

// UserItemPreference records whether a respondent recognises an item. Rows are
// append only.
type UserItemPreference struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"type:varchar(36);not null;index:idx_user_item"`
	ItemID    string    `gorm:"type:varchar(36);not null;index:idx_user_item"`
	Known     bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserItemPreference) TableName() string { return "user_item_preferences" }

func NewUser(attributes map[string]interface{}, trackCycles bool) *User {
	u := &User{
		ID:         uuid.New().String(),
		Attributes: datatypes.JSONMap(attributes),
	}
	if trackCycles {
		zero := 0
		u.CompletedCycles = &zero
	}
	return u
}
