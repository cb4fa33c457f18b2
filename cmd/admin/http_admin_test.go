package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

func TestAdminCall_DecodesStats(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want := world.Stats{
		WorldID:        "angel_island",
		Entities:       3,
		ByCategory:     map[string]int{"items": 2, "mobiles": 1},
		PatchesApplied: 7,
		PatchesKnown:   11,
		LastSave:       world.SaveStats{SaveID: "S1", Dir: "/data/saves/current", At: at, Records: 3, Bytes: 2048},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/v1/state" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(rw).Encode(want)
	}))
	defer srv.Close()

	var got world.Stats
	if err := adminCall(srv.Client(), http.MethodGet, adminURL(srv.URL+"/", "state"), &got); err != nil {
		t.Fatalf("adminCall: %v", err)
	}
	if got.WorldID != want.WorldID || got.Entities != 3 || got.PatchesApplied != 7 || got.PatchesKnown != 11 {
		t.Fatalf("stats: got %+v", got)
	}
	if got.ByCategory["items"] != 2 || got.LastSave.Dir != "/data/saves/current" || !got.LastSave.At.Equal(at) {
		t.Fatalf("stats detail: got %+v", got)
	}

	var out bytes.Buffer
	printStats(&out, got)
	for _, s := range []string{"angel_island", "items", "mobiles", "7/11 applied", "S1", "2.0 kB"} {
		if !strings.Contains(out.String(), s) {
			t.Fatalf("state output missing %q:\n%s", s, out.String())
		}
	}
	if !strings.Contains(out.String(), "last load") {
		t.Fatalf("state output missing last load line:\n%s", out.String())
	}
}

func TestAdminCall_SaveReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusInternalServerError)
		_, _ = rw.Write([]byte(`{"error":"disk full"}`))
	}))
	defer srv.Close()

	var st world.SaveStats
	err := adminCall(srv.Client(), http.MethodPost, adminURL(srv.URL, "save"), &st)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("want disk full error, got %v", err)
	}
}

func TestPrintSaveStats(t *testing.T) {
	st := world.SaveStats{
		SaveID:          "S2",
		Dir:             "/data/saves/current",
		Records:         5,
		ByCategory:      map[string]int{"items": 5},
		Bytes:           4096,
		CompressedBytes: 1000,
		Millis:          12,
	}
	var out bytes.Buffer
	printSaveStats(&out, st)
	for _, s := range []string{"S2", "/data/saves/current", "items", "4.1 kB", "1.0 kB compressed", "12ms"} {
		if !strings.Contains(out.String(), s) {
			t.Fatalf("save output missing %q:\n%s", s, out.String())
		}
	}
}
