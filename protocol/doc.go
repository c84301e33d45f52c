// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package protocol holds the wire-level pieces of busyhttp: the end-of-request
// delimiter, the fixed response, and a blocking reference handler.
package protocol
