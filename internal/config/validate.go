package config

import (
	"fmt"
	"time"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("config: Command is required")
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: Port must be 0-65535, got %d", c.Port)
	}

	if c.QueryTimeout <= 0 || c.QueryTimeout > time.Minute {
		return fmt.Errorf("config: QueryTimeout must be in (0, 1m], got %v", c.QueryTimeout)
	}

	return nil
}
