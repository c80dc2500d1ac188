// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"os/signal"
	"syscall"
)

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
// Commands that download, run subprocesses, or poll remote services
// build their context with this so Ctrl-C interrupts the operation
// cleanly instead of killing the process mid-write.
//
//	ctx, stop := cli.SignalContext()
//	defer stop()
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
