// Package config holds the accessory-wide configuration a cmd/hapd
// instance is launched with: identity, pairing setup code, transport
// ports, and logging.
package config

import (
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Config holds the settings needed to stand up one HAP accessory server.
type Config struct {
	LogLevel logrus.Level `default:"4"` // logrus.InfoLevel

	// AccessoryPairingID is the persistent `XX:XX:XX:XX:XX:XX` identifier
	// published in mDNS's `id` TXT field and BLE advertising's DeviceID.
	AccessoryPairingID string
	SetupCode          string
	Model              string `default:"hapd1,1"`
	Category           uint16 `default:"1"` // "Other"

	StorageDir string `default:"./hap-data"`

	HTTPPort int `default:"51826"`

	BLEEnabled        bool          `default:"true"`
	BroadcastInterval time.Duration `default:"3s"`
}

// DefaultConfig returns a Config with every go-defaults tag applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// NewLogger creates a logger configured from c, matching cmd/hapd's
// `--log-level`/`--verbose` precedence rule.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
