package bot

import (
	"time"
)

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Long-polling timeout in seconds
	UpdateTimeout int
	// Maximum number of records listed, each with a review button, in one message
	MaxListedRecords int
	// Largest accepted import file in bytes
	MaxImportSize int64
	// Time allowed for downloading an import file
	DownloadTimeout time.Duration
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		UpdateTimeout:    60,
		MaxListedRecords: 20,
		MaxImportSize:    5 << 20,
		DownloadTimeout:  30 * time.Second,
	}
}
