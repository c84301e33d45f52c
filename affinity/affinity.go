// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files guarded by build tags.

package affinity

import "runtime"

// PinCurrent locks the calling goroutine to its OS thread and pins that thread
// to cpuID. The returned release function undoes the goroutine lock; the
// thread keeps its CPU mask. A negative cpuID is a no-op.
func PinCurrent(cpuID int) (release func(), err error) {
	if cpuID < 0 {
		return func() {}, nil
	}
	runtime.LockOSThread()
	if err := setAffinityPlatform(cpuID); err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}
	return runtime.UnlockOSThread, nil
}
