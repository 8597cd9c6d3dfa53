// Package config loads the deployment configuration for pairjudge.
package config

import "time"

// Config is the full deployment configuration. It is loaded once at process
// start and treated as read-only afterwards.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Logging    LoggingConfig    `koanf:"logging"`
	Images     ImagesConfig     `koanf:"images"`
	Behaviour  BehaviourConfig  `koanf:"behaviour"`
	Comparison ComparisonConfig `koanf:"comparison"`
	UserFields []UserField      `koanf:"user_fields" validate:"dive"`

	// Path is the file the configuration was read from.
	Path string `koanf:"-"`
}

type ServerConfig struct {
	Port         int   `koanf:"port" validate:"gte=1,lte=65535"`
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"gte=0"`
}

type DatabaseConfig struct {
	Type           string `koanf:"type" validate:"oneof=sqlite postgres"`
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	User           string `koanf:"user"`
	Password       string `koanf:"password"`
	Name           string `koanf:"name"`
	SQLitePath     string `koanf:"sqlite_path"`
	MigrationsPath string `koanf:"migrations_path"`
}

// RedisConfig configures the session store. An empty Addr selects the
// in-process store.
type RedisConfig struct {
	Addr       string        `koanf:"addr"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db" validate:"gte=0"`
	SessionTTL time.Duration `koanf:"session_ttl"`
	KeyPrefix  string        `koanf:"key_prefix"`
}

type LoggingConfig struct {
	Mode     string `koanf:"mode"`
	Level    string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Redact   bool   `koanf:"redact"`
	HashSalt string `koanf:"hash_salt"`
}

type ImagesConfig struct {
	// Directory holds the served item images.
	Directory string `koanf:"directory"`
	// SourceDirectory, when set, is copied into Directory during setup.
	SourceDirectory string `koanf:"source_directory"`
}

type BehaviourConfig struct {
	RenderItemPreferencePage bool  `koanf:"render_item_preference_page"`
	OfferEscapeRoute         bool  `koanf:"offer_escape_route_between_cycles"`
	CycleLength              int   `koanf:"cycle_length" validate:"gte=0"`
	MaximumCyclesPerUser     int   `koanf:"maximum_cycles_per_user" validate:"gte=0"`
	AllowTies                bool  `koanf:"allow_ties"`
	AllowSkip                bool  `koanf:"allow_skip"`
	AllowBack                bool  `koanf:"allow_back"`
	RNGSeed                  int64 `koanf:"rng_seed"`
}

type ComparisonConfig struct {
	WeightConfiguration string        `koanf:"weight_configuration" validate:"oneof=equal custom"`
	Groups              []GroupConfig `koanf:"groups" validate:"required,min=1,dive"`
}

type GroupConfig struct {
	Name        string         `koanf:"name" validate:"required,max=255"`
	DisplayName string         `koanf:"display_name" validate:"required,max=255"`
	Items       []ItemConfig   `koanf:"items" validate:"required,min=2,dive"`
	Weights     []WeightConfig `koanf:"weights" validate:"dive"`
}

type ItemConfig struct {
	Name        string `koanf:"name" validate:"required,max=255"`
	DisplayName string `koanf:"display_name" validate:"required,max=255"`
	ImageName   string `koanf:"image_name" validate:"required,max=1000"`
}

type WeightConfig struct {
	Item1  string  `koanf:"item_1" validate:"required"`
	Item2  string  `koanf:"item_2" validate:"required,nefield=Item1"`
	Weight float64 `koanf:"weight" validate:"gte=0,lte=1"`
}

const (
	FieldText     = "text"
	FieldInt      = "int"
	FieldDropdown = "dropdown"
	FieldRadio    = "radio"
	FieldEmail    = "email"
)

// UserField describes one registration attribute.
type UserField struct {
	Name        string   `koanf:"name" validate:"required,max=64"`
	DisplayName string   `koanf:"display_name" validate:"required"`
	Type        string   `koanf:"type" validate:"oneof=text int dropdown radio email"`
	Required    bool     `koanf:"required"`
	MinLimit    *int     `koanf:"min_limit"`
	MaxLimit    *int     `koanf:"max_limit"`
	Options     []string `koanf:"options"`
}
