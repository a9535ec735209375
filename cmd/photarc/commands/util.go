package commands

import (
	"fmt"

	"github.com/mbianchi/photarc/internal/logger"
	"github.com/mbianchi/photarc/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
