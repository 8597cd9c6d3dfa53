package models

import "time"

type WeightMode string

const (
	WeightEqual  WeightMode = "equal"
	WeightCustom WeightMode = "custom"
)

// WebsiteControl records how the deployment was seeded. The most recent row is
// authoritative.
type WebsiteControl struct {
	ID                  uint       `gorm:"primaryKey;autoIncrement"`
	WeightConfiguration WeightMode `gorm:"type:varchar(20);not null"`
	ConfigurationFile   string     `gorm:"type:varchar(500);not null"`
	SetupAt             time.Time  `gorm:"autoCreateTime"`
}

func (WebsiteControl) TableName() string { return "website_control" }

// All lists every persisted model in dependency order.
func All() []interface{} {
	return []interface{}{
		&Group{},
		&Item{},
		&ItemGroup{},
		&CustomItemPair{},
		&User{},
		&UserGroup{},
		&UserItemPreference{},
		&Comparison{},
		&WebsiteControl{},
	}
}
