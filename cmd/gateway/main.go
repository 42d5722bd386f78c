// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ozean-licht/ozean-licht-sub011/agent"
	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := agent.Run(ctx); err != nil {
		logger.New("gateway").Error("", "", "gateway exited with error", map[string]interface{}{
			"error": err.Error(),
		})
		stop()
		os.Exit(1)
	}
}
