//go:build unix

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/momentics/busyhttp/control"
)

// notifyDump logs a JSON snapshot of all probes on every SIGUSR1.
func notifyDump(ctx context.Context, probes *control.DebugProbes, log logrus.FieldLogger) (stop func()) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-usr1:
				raw, err := probes.DumpJSON()
				if err != nil {
					log.WithError(err).Error("dump state")
					continue
				}
				log.WithField("state", string(raw)).Info("debug dump")
			}
		}
	}()
	return func() {
		signal.Stop(usr1)
		close(done)
	}
}
