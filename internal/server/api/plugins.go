package api

import (
	"net/http"

	"github.com/ayusman/mudra/internal/plugin"
)

// PluginHandler lists discovered plugins and rescans the plugin directory.
type PluginHandler struct {
	manager *plugin.Manager
}

// NewPluginHandler creates a PluginHandler.
func NewPluginHandler(m *plugin.Manager) *PluginHandler {
	return &PluginHandler{manager: m}
}

type pluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}

// ServeHTTP handles GET /api/plugins and POST /api/plugins/reload.
func (h *PluginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/plugins/reload" && r.Method == http.MethodPost:
		if err := h.manager.Discover(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reload plugins")
			return
		}
	case r.URL.Path == "/api/plugins" && r.Method == http.MethodGet:
	case r.URL.Path == "/api/plugins" || r.URL.Path == "/api/plugins/reload":
		methodNotAllowed(w)
		return
	default:
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	list := h.manager.List()
	resp := make([]pluginResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, pluginResponse{
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Actions:     p.Manifest.Actions,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": resp})
}
