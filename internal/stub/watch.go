package stub

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true // local dev
	},
}

// watchJob streams job snapshots over a websocket until the job reaches a
// terminal status, then closes normally. The stub drives the processing
// simulation itself here, since no poll fetches arrive while a client
// watches.
func (s *Server) watchJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if _, ok := s.store.PeekJob(id); !ok {
		writeDetail(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		job, ok := s.store.FetchJob(id)
		if !ok {
			return
		}
		if err := conn.WriteJSON(job); err != nil {
			return
		}
		if job.Status.Terminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
