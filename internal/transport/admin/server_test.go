package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/patch"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

func newTestServer(t *testing.T, save SaveFunc) (*httptest.Server, *Hub) {
	t.Helper()
	w := world.New(world.Config{ID: "angel_island", Logger: log.New(io.Discard, "", 0)})
	hub := NewHub()
	mux := http.NewServeMux()
	NewServer(w, save, hub, log.New(io.Discard, "", 0)).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestStateAndPatches(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/admin/v1/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	defer resp.Body.Close()
	var st world.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.WorldID != "angel_island" || st.PatchesKnown != patch.Dynamic.Len() {
		t.Fatalf("state=%+v", st)
	}

	resp, err = http.Get(srv.URL + "/admin/v1/patches")
	if err != nil {
		t.Fatalf("get patches: %v", err)
	}
	defer resp.Body.Close()
	var ps []patchView
	if err := json.NewDecoder(resp.Body).Decode(&ps); err != nil {
		t.Fatalf("decode patches: %v", err)
	}
	if len(ps) != patch.Dynamic.Len() || ps[4].Key != patch.ContainerWeightRecalc.Key {
		t.Fatalf("patches=%+v", ps)
	}

	resp, err = http.Post(srv.URL+"/admin/v1/state", "application/json", nil)
	if err != nil {
		t.Fatalf("post state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want 405", resp.StatusCode)
	}
}

func TestSave(t *testing.T) {
	calls := 0
	srv, _ := newTestServer(t, func(ctx context.Context) (world.SaveStats, error) {
		calls++
		if calls > 1 {
			return world.SaveStats{}, errors.New("disk full")
		}
		return world.SaveStats{SaveID: "s1", Records: 3}, nil
	})

	resp, err := http.Post(srv.URL+"/admin/v1/save", "application/json", nil)
	if err != nil {
		t.Fatalf("post save: %v", err)
	}
	var st world.SaveStats
	_ = json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || st.SaveID != "s1" {
		t.Fatalf("status=%d stats=%+v", resp.StatusCode, st)
	}

	resp, err = http.Post(srv.URL+"/admin/v1/save", "application/json", nil)
	if err != nil {
		t.Fatalf("post save: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(string(b), "disk full") {
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
}

func TestEvents_StreamsEmittedEvents(t *testing.T) {
	srv, hub := newTestServer(t, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Emit(world.Event{Kind: world.EventSave, SaveID: "s9"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev world.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != world.EventSave || ev.SaveID != "s9" {
		t.Fatalf("event=%+v", ev)
	}
}

func TestHub_DropsForSlowSubscribers(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)
	h.Emit(world.Event{Kind: world.EventLoad})
	h.Emit(world.Event{Kind: world.EventSave})
	if h.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", h.Dropped())
	}
	if ev := <-ch; ev.Kind != world.EventLoad {
		t.Fatalf("first=%v", ev.Kind)
	}
	h.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:5000":     true,
		"10.0.0.2:5000":  false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
