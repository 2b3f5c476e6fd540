package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classcast/classcast/internal/archive"
	"github.com/classcast/classcast/internal/assist"
	"github.com/classcast/classcast/internal/auth"
	"github.com/classcast/classcast/internal/bridge"
	"github.com/classcast/classcast/internal/config"
	"github.com/classcast/classcast/internal/gateway"
	"github.com/classcast/classcast/internal/llm"
	"github.com/classcast/classcast/internal/server"
	"github.com/classcast/classcast/internal/session"
	"github.com/classcast/classcast/internal/storage"
	"github.com/classcast/classcast/internal/transcribe"
)

func main() {
	log.Println("classcast: starting")

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var assistant gateway.Assistant
	if provider, model, err := llm.ParseModel(cfg.NotesModel); err == nil {
		if key := cfg.APIKeyFor(provider); key != "" {
			client, err := llm.NewClient(provider, key, model)
			if err != nil {
				log.Printf("warning: note generation disabled: %v", err)
			} else {
				assistant = assist.New(client)
			}
		}
	}

	var transcriber transcribe.Streamer
	if cfg.DeepgramAPIKey != "" {
		transcriber = transcribe.NewDeepgram(ctx, transcribe.DeepgramConfig{
			APIKey:     cfg.DeepgramAPIKey,
			Model:      cfg.TranscribeModel,
			Language:   cfg.TranscribeLanguage,
			SampleRate: cfg.AudioSampleRate,
		})
	}

	persister := bridge.New(store)
	defer persister.Close()

	gw := gateway.New(gateway.Config{
		Store:         store,
		Verifier:      auth.NewVerifier(cfg.JWTSecret, store),
		Registry:      session.NewRegistry(),
		Transcriber:   transcriber,
		Assistant:     assistant,
		Persister:     persister,
		PollTimeLimit: cfg.ParsedPollTimeLimit(),
		QuizTimeLimit: cfg.ParsedQuizTimeLimit(),
	})

	httpServer := &http.Server{Addr: cfg.Addr, Handler: server.Handler(gw)}
	go func() {
		log.Printf("classcast: listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	if cfg.ArchiveFolderID != "" {
		syncer, syncErr := archive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.ArchiveFolderID, cfg.DBPath)
		if syncErr != nil {
			log.Printf("warning: archive sync disabled: %v", syncErr)
		} else {
			go syncer.Run(ctx, 5*time.Minute)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("classcast: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}
