package hub

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
)

// Routes returns the hub's HTTP handler.
func (h *Hub) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/connect", h.handleConnect)
	r.Get("/healthz", h.handleHealthz)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type healthResponse struct {
	Status        string  `json:"status"`
	SessionActive bool    `json:"session_active"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	RSSBytes      uint64  `json:"rss_bytes,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
}

func (h *Hub) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		SessionActive: h.Active(),
		UptimeSeconds: time.Since(h.started).Seconds(),
	}
	// Process statistics are best effort; the hub is healthy without them.
	if proc, err := process.NewProcessWithContext(r.Context(), int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfoWithContext(r.Context()); err == nil {
			resp.RSSBytes = mem.RSS
		}
		if cpu, err := proc.CPUPercentWithContext(r.Context()); err == nil {
			resp.CPUPercent = cpu
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
