package main

import (
	"context"
	"errors"
	"fmt"

	"wordfill/internal/health"
	"wordfill/internal/metrics"
)

// registerHealth wires a check for each long-lived component. Only the
// control socket is critical: without it no trigger can reach the daemon.
func (d *daemon) registerHealth() {
	d.health.RegisterFunc("ipc", true, func(ctx context.Context) health.CheckResult {
		if !d.server.Running() {
			return health.Healthy(errors.New("control socket closed"), health.StatusUnhealthy, "")
		}
		return health.CheckResult{
			Status:  health.StatusHealthy,
			Message: "listening",
			Details: map[string]any{
				"socket":  d.server.SocketPath(),
				"clients": d.server.ClientCount(),
			},
		}
	})

	d.health.RegisterFunc("accessibility", false, func(ctx context.Context) health.CheckResult {
		if d.platform.Authorizer.IsIntrospectionAuthorized() {
			return health.CheckResult{Status: health.StatusHealthy, Message: "access granted"}
		}
		return health.CheckResult{Status: health.StatusDegraded, Message: "access not granted"}
	})

	d.health.RegisterFunc("displays", false, func(ctx context.Context) health.CheckResult {
		displays, err := d.platform.Displays.Displays(ctx)
		if err != nil {
			return health.Healthy(err, health.StatusUnhealthy, "")
		}
		if len(displays) == 0 {
			return health.CheckResult{Status: health.StatusDegraded, Message: "no displays attached"}
		}
		return health.CheckResult{
			Status:  health.StatusHealthy,
			Message: fmt.Sprintf("%d displays", len(displays)),
		}
	})

	d.health.RegisterFunc("suggest", false, func(ctx context.Context) health.CheckResult {
		d.mu.Lock()
		providers := append([]string(nil), d.providers...)
		d.mu.Unlock()
		if len(providers) == 0 {
			return health.CheckResult{Status: health.StatusDegraded, Message: "no suggestion provider loaded"}
		}
		stats := d.cache.Statistics()
		return health.CheckResult{
			Status:  health.StatusHealthy,
			Message: "providers loaded",
			Details: map[string]any{
				"providers":     providers,
				"cache_entries": stats.Entries,
				"cache_bytes":   stats.Bytes,
			},
		}
	})
}

// healthRoutes are served beside /metrics.
func (d *daemon) healthRoutes() []metrics.Route {
	return []metrics.Route{
		{Pattern: "/healthz", Handler: d.health.Handler()},
		{Pattern: "/readyz", Handler: d.health.ReadinessHandler()},
	}
}
