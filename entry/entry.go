package entry

import (
	"time"

	"github.com/XANi/weatherstage/weatherstage"
)

// Data is set at setup/reconfigure time and validated against the endpoint
type Data struct {
	EndpointURL string `json:"endpoint_url" yaml:"endpoint_url"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// Entry is a single configured endpoint with its sensor mapping
type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Data      Data      `gorm:"embedded" json:"data"`
	Options   Options   `gorm:"embedded;embeddedPrefix:opt_" json:"options"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Options = weatherstage.Options

// Seed is entry defined in config file
type Seed struct {
	Data    `yaml:",inline"`
	Options Options `yaml:"options"`
}
