package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
)

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports each dependency's reachability. Any failing check turns
// the overall status to degraded with a 503.
func Health(checks map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		results := make(map[string]string, len(names))

		for _, name := range names {
			results[name] = "ok"
			if err := checks[name].Ping(r.Context()); err != nil {
				results[name] = "unreachable"
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": results})
	}
}
