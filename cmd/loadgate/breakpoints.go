package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/JesseSolomon/dev.jessesolomon.me/scene"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// breakpointHandler serves the responsive class table to the page. With a
// width query it also reports which classes are set at that width.
type breakpointHandler struct {
	table  scene.Breakpoints
	logger telemetry.Logger
}

type breakpointResponse struct {
	Breakpoints scene.Breakpoints `json:"breakpoints"`
	Width       *float64          `json:"width,omitempty"`
	Classes     map[string]bool   `json:"classes,omitempty"`
}

func (h breakpointHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	resp := breakpointResponse{Breakpoints: h.table}
	if resp.Breakpoints == nil {
		resp.Breakpoints = scene.Breakpoints{}
	}
	if raw := r.URL.Query().Get("width"); raw != "" {
		width, err := strconv.ParseFloat(raw, 64)
		if err != nil || width < 0 {
			http.Error(w, "width must be a non-negative number", http.StatusBadRequest)
			return
		}
		resp.Width = &width
		resp.Classes = h.table.Classes(width)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("write breakpoints failed", telemetry.Err(err))
	}
}
