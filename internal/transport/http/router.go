package http

import "net/http"

// NewRouter mounts the health check, the JSON API and the websocket gateway.
func NewRouter(api *APIHandler, ws *WSHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	api.Register(mux)
	mux.HandleFunc("GET /ws", ws.ServeWS)
	return mux
}
