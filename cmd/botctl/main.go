// Package main is botctl, the operator CLI: it validates connector
// declarations, lists persisted configurations and uploads snapshots.
package main

import (
	"os"

	"github.com/garyellow/convobot-go/internal/logger"
)

func main() {
	log := logger.NewWithWriter(os.Getenv("CONVOBOT_LOG_LEVEL"), os.Stderr)
	if err := newRoot(log).Execute(); err != nil {
		os.Exit(1)
	}
}
