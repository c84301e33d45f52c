// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime statistics and debug introspection for busyhttp.
//
// Provides:
//   - YAML configuration with defaults and validation
//   - Logger construction from configuration
//   - Connection counters with a bounded history of terminal events
//   - Named debug probes dumped on demand
package control
