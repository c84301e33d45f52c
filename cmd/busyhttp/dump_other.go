//go:build !unix

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/momentics/busyhttp/control"
)

// notifyDump is a no-op where SIGUSR1 does not exist.
func notifyDump(context.Context, *control.DebugProbes, logrus.FieldLogger) (stop func()) {
	return func() {}
}
