package main

import (
	"encoding/json"
	"net/http"

	"github.com/JaimeStill/attest/pkg/lifecycle"
	"github.com/JaimeStill/attest/pkg/module"
)

func newRouter(lc *lifecycle.Coordinator) *module.Router {
	router := module.NewRouter()
	router.HandleNative("GET /healthz", healthz)
	router.HandleNative("GET /readyz", readyz(lc))
	return router
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, map[string]any{"status": "ok"})
}

// readyz reports 503 with the names of pending checks until startup hooks
// have finished and every registered check passes.
func readyz(lc *lifecycle.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if pending := lc.Pending(); len(pending) > 0 {
			writeProbe(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "not ready",
				"pending": pending,
			})
			return
		}
		writeProbe(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}

func writeProbe(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
