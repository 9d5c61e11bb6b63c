package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/lineitem"
)

func dialEvents(t *testing.T, srv *httptest.Server, tableID, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/tables/" + tableID + "/events?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial events: %v (status %d)", err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.TableEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var evt domain.TableEvent
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return evt
}

func postJSON(t *testing.T, api *API, srv *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestTableEventsStream(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	token := loginAs(t, api, "clerk", "clerk123")
	table := openTable(t, api, token, false)

	conn := dialEvents(t, srv, table.ID, token)
	snapshot := readEvent(t, conn)
	if snapshot.Kind != EventSnapshot || snapshot.TableID != table.ID || snapshot.Total != "0.00" || snapshot.Seq != 0 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	resp := postJSON(t, api, srv, http.MethodPost, "/api/v1/tables/"+table.ID+"/rows", token,
		domain.RowAddRequest{ProductID: 2, PriceField: lineitem.PriceFieldSell})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add row: %d", resp.StatusCode)
	}

	added := readEvent(t, conn)
	if added.Kind != string(lineitem.EventRowAdded) || added.Total != "14.90" || added.Row == nil || added.Seq != 1 {
		t.Fatalf("unexpected add event %+v", added)
	}

	quantity := "3"
	resp = postJSON(t, api, srv, http.MethodPatch, "/api/v1/tables/"+table.ID+"/rows/"+added.Row.ID, token,
		domain.RowUpdateRequest{Quantity: &quantity})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update row: %d", resp.StatusCode)
	}

	updated := readEvent(t, conn)
	if updated.Kind != string(lineitem.EventRowUpdated) || updated.Total != "44.70" || updated.Row.Amount != "44.70" || updated.Seq != 2 {
		t.Fatalf("unexpected update event %+v", updated)
	}
}

func TestTableEventsEndWhenTableClosed(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	token := loginAs(t, api, "clerk", "clerk123")
	table := openTable(t, api, token, false)
	resp := postJSON(t, api, srv, http.MethodPost, "/api/v1/tables/"+table.ID+"/rows", token,
		domain.RowAddRequest{ProductID: 2, PriceField: lineitem.PriceFieldSell})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add row: %d", resp.StatusCode)
	}

	conn := dialEvents(t, srv, table.ID, token)
	snapshot := readEvent(t, conn)
	if snapshot.Total != "14.90" || snapshot.Seq != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	resp = postJSON(t, api, srv, http.MethodDelete, "/api/v1/tables/"+table.ID, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("close table: %d", resp.StatusCode)
	}

	closed := readEvent(t, conn)
	if closed.Kind != EventTableClosed || closed.Row != nil || closed.Seq != 2 {
		t.Fatalf("unexpected close event %+v", closed)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal closure, got %v", err)
	}
}

func TestTableEventsRejectsStrangers(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	clerk := loginAs(t, api, "clerk", "clerk123")
	table := openTable(t, api, clerk, false)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/tables/" + table.ID + "/events"

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"bad token", "?access_token=nope", http.StatusUnauthorized},
		{"unknown table", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := wsURL + tt.query
			if tt.want == http.StatusNotFound {
				target = "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/tables/tbl-missing/events?access_token=" + clerk
			}
			conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
			if err == nil {
				_ = conn.Close()
				t.Fatalf("expected handshake to fail")
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Fatalf("expected status %d, got %+v", tt.want, resp)
			}
		})
	}
}
