package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdfreader/internal/config"
	"pdfreader/internal/conversation"
	"pdfreader/internal/embedding"
	"pdfreader/internal/pipeline"
	"pdfreader/internal/server"
	"pdfreader/internal/session"
	"pdfreader/internal/storage"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	addr := flag.String("addr", "", "Listen address override")
	dataDir := flag.String("data", "./data", "Directory for per-session temp files")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log.Debug().Interface("config", cfg).Msg("Loaded config")

	store, err := storage.New(*dataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing storage")
	}

	embedder, err := embedding.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	log.Info().
		Str("provider", cfg.Embedding.Provider).
		Str("model", cfg.Embedding.Model).
		Str("device", cfg.Embedding.Device).
		Bool("normalize", cfg.Embedding.Normalize).
		Msg("embedding provider ready")

	conv, err := conversation.NewOpenAI(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing conversation service")
	}

	sessions := session.NewManager(cfg.SessionTTL(), func(s *session.Session) {
		store.Cleanup(s.WorkDir)
	})

	pipe := pipeline.New(cfg, embedder, conv, store)
	srv := server.New(cfg, sessions, pipe, store)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Info().Msg("shutting down")
		if err := srv.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Error shutting down server")
		}
	}()

	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
}
