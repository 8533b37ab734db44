// Package ports defines the interfaces (ports) that external adapters must implement.
// Services depend on these so storage and event delivery can be swapped or mocked in tests.
package ports
