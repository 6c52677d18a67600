package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_viewer/internal/config"
	"github.com/relabs-tech/imu_viewer/internal/orientation"
	"github.com/relabs-tech/imu_viewer/internal/poll"
)

// orientationResponse is the /api/orientation payload: the newest
// sample plus staleness information so a consumer can tell a live feed
// from a wedged device.
type orientationResponse struct {
	orientation.Sample
	UpdatedAt time.Time `json:"updated_at"`
	AgeMS     int64     `json:"age_ms"`
}

// RunWeb serves the live 3D viewer: a JSON API for the latest sample,
// a websocket feed for the render loop, loop counters, and the static
// page under ./web.
func RunWeb(slot *orientation.Latest, loop *poll.Loop) error {
	cfg := config.Get()

	r := newRoom(time.Duration(cfg.SinkStallMS) * time.Millisecond)
	go r.run()
	go broadcastSamples(r, slot, time.Duration(cfg.PollPeriodMS)*time.Millisecond)

	mux := http.NewServeMux()

	// 1) JSON API endpoint: latest sample
	mux.HandleFunc("/api/orientation", func(w http.ResponseWriter, req *http.Request) {
		sample, ok := slot.Get()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		updated := slot.UpdatedAt()
		resp := orientationResponse{
			Sample:    sample,
			UpdatedAt: updated,
			AgeMS:     time.Since(updated).Milliseconds(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Errorf("web: json encode error: %v", err)
		}
	})

	// 2) Loop counters
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(loop.Stats()); err != nil {
			log.Errorf("web: json encode error: %v", err)
		}
	})

	// 3) Websocket feed for the render loop
	mux.Handle("/ws", r)

	// 4) Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir("web")))

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Infof("web: server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// broadcastSamples pushes each newly published sample to the websocket
// room, at most one frame per poll period. Clients that fall behind
// get frames dropped by the room, never a growing backlog.
func broadcastSamples(r *room, slot *orientation.Latest, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var lastPush time.Time
	for range ticker.C {
		sample, ok := slot.Get()
		if !ok {
			continue
		}
		updated := slot.UpdatedAt()
		if !updated.After(lastPush) {
			continue
		}
		lastPush = updated

		frame, err := json.Marshal(sample)
		if err != nil {
			log.Errorf("web: sample marshal error: %v", err)
			continue
		}
		r.broadcast(frame)
	}
}
