package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/config"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/shard"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/transport/admin"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/server.yaml", "server config path (empty for defaults)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		worldID    = flag.String("world", "", "world id (overrides config)")
		adminAddr  = flag.String("admin", "", "admin listen address (overrides config; must be loopback)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	cfg.SetDataDir(*dataDir)
	if v := strings.TrimSpace(*worldID); v != "" {
		cfg.WorldID = v
	}
	if v := strings.TrimSpace(*adminAddr); v != "" {
		cfg.AdminAddr = v
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	hub := admin.NewHub()
	sh, err := shard.Open(cfg, shard.Options{Logger: logger, Sinks: []world.EventSink{hub}})
	if err != nil {
		logger.Fatalf("open shard: %v", err)
	}
	defer func() {
		if err := sh.Close(); err != nil {
			logger.Printf("close: %v", err)
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	loaded, err := sh.Boot(ctx)
	if err != nil {
		logger.Fatalf("boot: %v", err)
	}
	st := sh.World.Stats()
	logger.Printf("world=%s loaded=%v entities=%d patches=%d/%d", cfg.WorldID, loaded, st.Entities, st.PatchesApplied, st.PatchesKnown)

	autosaveDone := make(chan struct{})
	go func() {
		defer close(autosaveDone)
		sh.Autosave(ctx, cfg.AutosaveInterval)
	}()

	var srv *http.Server
	if cfg.AdminAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(200)
			_, _ = rw.Write([]byte("ok"))
		})
		admin.NewServer(sh.World, sh.Save, hub, logger).Register(mux)
		srv = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("admin listening on %s", cfg.AdminAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("admin ListenAndServe: %v", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	logger.Printf("shutting down")
	<-autosaveDone
	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx2)
		cancel2()
	}

	saveCtx, cancelSave := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancelSave()
	if _, err := sh.Save(saveCtx); err != nil {
		logger.Printf("final save failed: %v", err)
		return
	}
	logger.Printf("final save complete")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
