package api

import (
	"net/http"
	"time"

	"github.com/SlNPacifist/icfpc2023/internal/buildinfo"
)

// DebugJSON reports build info and the effective configuration without secrets.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build":  buildinfo.Info(),
		"time":   time.Now().UTC().Format(time.RFC3339),
		"config": s.Config,
		"backends": map[string]any{
			"store":    storeKind(s.Store),
			"redis":    s.Config.RedisURL != "",
			"webhooks": len(s.Config.Webhooks.URLs),
			"apiToken": s.Config.HTTP.APIToken != "",
		},
	})
}
