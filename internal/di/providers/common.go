package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second
)

// Version is reported by the status and health endpoints. Set at build time
// with -ldflags "-X .../internal/di/providers.Version=...".
var Version = "dev"
