// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package pool provides fixed-size request buffer recycling for the event loop.
package pool
