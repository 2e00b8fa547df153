package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"go.uber.org/zap"
)

const streamWriteTimeout = 10 * time.Second

// ProgressEvent is pushed to stream clients on every run update.
type ProgressEvent struct {
	RunID    string         `json:"runId"`
	Status   types.RunState `json:"status"`
	Progress types.Progress `json:"progress"`
	Reason   string         `json:"reason,omitempty"`
}

func newProgressEvent(run types.BacktestRun) ProgressEvent {
	return ProgressEvent{
		RunID:    run.ID,
		Status:   run.State,
		Progress: run.Progress,
		Reason:   run.Reason,
	}
}

// handleStream upgrades to a websocket and pushes progress events until the
// run is terminal or the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]

	updates, unsubscribe, err := s.runs.Subscribe(runID)
	if err != nil {
		s.writeError(w, err)

		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", zap.String("run_id", runID), zap.Error(err))

		return
	}
	defer conn.Close()

	// the reader only watches for the client closing the connection
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				unsubscribe()

				return
			}
		}
	}()

	for run := range updates {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))

		if err := conn.WriteJSON(newProgressEvent(run)); err != nil {
			s.log.Debug("Stopped streaming progress", zap.String("run_id", runID), zap.Error(err))

			return
		}
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
		time.Now().Add(streamWriteTimeout),
	)
}
