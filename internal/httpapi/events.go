package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/lineitem"
)

const (
	eventWriteWait  = 5 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = 30 * time.Second
	eventBuffer     = 64

	// EventSnapshot is the first message of every stream: the table total
	// at the moment the client attached.
	EventSnapshot = "snapshot"
	// EventTableClosed is the last message of a stream whose table was
	// closed or pruned.
	EventTableClosed = string(lineitem.EventTableClosed)
)

// handleTableEvents upgrades to a websocket and streams the table's
// mutations as JSON domain.TableEvent messages. Seq never decreases on a
// stream: an event older than one already sent is dropped, since its total
// is stale. A client that cannot keep up is disconnected rather than slowing
// down the table. Closing the table ends the stream with a table_closed
// event and a normal closure.
func (a *API) handleTableEvents(w http.ResponseWriter, r *http.Request, tableID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	events := make(chan domain.TableEvent, eventBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once
	unsubscribe, err := a.service.Subscribe(r.Context(), tableID, func(evt domain.TableEvent) {
		select {
		case events <- evt:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	defer unsubscribe()

	view, err := a.service.GetTable(r.Context(), tableID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "table_id", tableID, "error", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go readUntilClosed(conn, done)

	snapshot := domain.TableEvent{TableID: view.ID, Kind: EventSnapshot, Seq: view.Seq, Total: view.Total}
	if err := writeEvent(conn, snapshot); err != nil {
		return
	}
	lastSeq := view.Seq

	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case evt := <-events:
			if evt.Seq <= lastSeq {
				continue
			}
			lastSeq = evt.Seq
			if err := writeEvent(conn, evt); err != nil {
				a.logger.Debug("table event write failed", "table_id", tableID, "error", err)
				return
			}
			if evt.Kind == EventTableClosed {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "table closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(eventWriteWait))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case <-overflow:
			a.logger.Warn("table event client too slow", "table_id", tableID)
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(eventWriteWait))
			return
		case <-done:
			return
		}
	}
}

// readUntilClosed drains client frames so control messages are processed
// and closes done when the connection goes away.
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, evt domain.TableEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
