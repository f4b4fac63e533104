package httpx

import (
	"io"
	"net/http"
)

const healthResponse = `{"status":"ok","service":"paymaster"}`

// healthHandler answers readiness/liveness probes. It deliberately does not
// touch Postgres or Redis: a degraded store shows up in task metrics, and
// taking the API out of rotation would also take down job-status polling.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Client connection is gone; nothing more to do.
		return
	}
}
