//go:build linux
// +build linux

package affinity_test

import (
	"errors"
	"testing"

	"github.com/momentics/busyhttp/affinity"
	"github.com/momentics/busyhttp/api"
)

func TestPinCurrent_NegativeIsNoop(t *testing.T) {
	release, err := affinity.PinCurrent(-1)
	if err != nil {
		t.Fatal(err)
	}
	release()
}

func TestPinCurrent_AllowedCPU(t *testing.T) {
	cpus, err := affinity.Current()
	if err != nil || len(cpus) == 0 {
		t.Skipf("cannot read affinity: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		// the goroutine exits still locked, so its narrowed thread is discarded
		if _, err := affinity.PinCurrent(cpus[0]); err != nil {
			t.Errorf("pin cpu %d: %v", cpus[0], err)
			return
		}
		now, err := affinity.Current()
		if err != nil {
			t.Error(err)
			return
		}
		if len(now) != 1 || now[0] != cpus[0] {
			t.Errorf("expected mask [%d], got %v", cpus[0], now)
		}
	}()
	<-done
}

func TestPinCurrent_DisallowedCPU(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := affinity.PinCurrent(1 << 16)
		if !errors.Is(err, api.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	}()
	<-done
}
