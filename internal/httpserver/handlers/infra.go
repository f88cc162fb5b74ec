package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
)

type componentStatus struct {
	OK          bool                 `json:"ok"`
	Mode        string               `json:"mode,omitempty"`
	Instances   *int                 `json:"instances,omitempty"`
	ByState     map[domain.State]int `json:"by_state,omitempty"`
	LastChange  string               `json:"last_change,omitempty"`
	Subscribers *int                 `json:"subscribers,omitempty"`
	Dropped     *uint64              `json:"dropped,omitempty"`
	Sent        map[string]int64     `json:"messages_sent,omitempty"`
	Impact      string               `json:"impact,omitempty"`
	Error       string               `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg := d.Gateway.Registry()
		counts := reg.Count()
		total := 0
		for _, n := range counts {
			total += n
		}
		lastChange := "never"
		if lc := reg.LastChange(); !lc.IsZero() {
			lastChange = lc.Format("2006-01-02 15:04:05")
		}

		subscribers := d.Hub.Subscribers()
		dropped := d.Hub.Dropped()

		components := map[string]componentStatus{
			"transport": {
				OK:   true,
				Mode: d.Gateway.TransportName(),
			},
			"registry": {
				OK:         counts[domain.StateError] == 0,
				Mode:       "logout-" + string(reg.LogoutPolicy()) + ", qr-ttl-" + reg.QRTTL().String(),
				Instances:  &total,
				ByState:    counts,
				LastChange: lastChange,
			},
			"events": {
				OK:          true,
				Subscribers: &subscribers,
				Dropped:     &dropped,
			},
			"redis": checkRedis(r.Context(), d),
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Status:     overallStatus(components),
			Components: components,
		})
	}
}

func overallStatus(components map[string]componentStatus) string {
	if reg, ok := components["registry"]; ok && !reg.OK {
		return "degraded" // some instance needs operator attention
	}
	if redis, ok := components["redis"]; ok && !redis.OK && redis.Mode != "disabled" {
		return "degraded"
	}
	return "operational"
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.Store == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "no-event-history",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "event-history-stale",
			Error:  "timeout",
		}
	}

	status := componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "event-history-enabled",
	}
	if sent, err := d.Store.SentCounts(ctx); err == nil && len(sent) > 0 {
		status.Sent = sent
	}
	return status
}
