// Package server assembles the HTTP surface. The realtime websocket is the
// whole product; the rest is a health probe.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/classcast/classcast/internal/gateway"
)

func Handler(gw *gateway.Gateway) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", gw.ServeWS)
	mux.HandleFunc("GET /api/health", handleHealth)

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
