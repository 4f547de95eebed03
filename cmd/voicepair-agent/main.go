package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voicepair/voicepair-go/internal/client"
	"github.com/voicepair/voicepair-go/internal/config"
	"github.com/voicepair/voicepair-go/internal/database"
	"github.com/voicepair/voicepair-go/internal/lifecycle"
	"github.com/voicepair/voicepair-go/internal/media"
	"github.com/voicepair/voicepair-go/internal/model"
	"github.com/voicepair/voicepair-go/internal/redis"
	"github.com/voicepair/voicepair-go/internal/signaling"
)

var defaultSTUN = []string{"stun:stun.l.google.com:19302"}

func main() {
	userID := flag.String("user", "", "user id (random if empty)")
	duration := flag.Int("duration", 300, "desired call duration in seconds")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	setLogLevel(cfg.LogLevel)

	if *userID == "" {
		*userID = uuid.NewString()
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	pingCancel()

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	c := client.New(cfg, db, redisClient, *userID, func() (signaling.MediaEngine, error) {
		return media.NewEngine(defaultSTUN)
	})
	defer c.Close()

	var mu sync.Mutex
	var currentSession *model.Session
	ended := make(chan lifecycle.EndEvent, 1)
	matchFailed := make(chan error, 1)

	c.OnMatched(func(session *model.Session) {
		mu.Lock()
		currentSession = session
		mu.Unlock()
		log.Info().
			Str("sessionId", session.ID).
			Str("partnerId", session.PartnerOf(*userID)).
			Int("plannedSecs", session.PlannedDurationSecs).
			Msg("matched")
	})
	c.OnSessionEnded(func(event lifecycle.EndEvent) {
		mu.Lock()
		currentSession = nil
		mu.Unlock()
		ended <- event
	})
	c.OnMatchFailed(func(err error) {
		matchFailed <- err
	})

	ctx := context.Background()

	log.Info().Str("userId", *userID).Int("durationSecs", *duration).Msg("requesting match")
	handle, err := c.RequestMatch(ctx, *duration)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to request match")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		mu.Lock()
		session := currentSession
		mu.Unlock()

		if session != nil {
			log.Info().Str("sessionId", session.ID).Msg("hanging up")
			hangupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.SendHangup(hangupCtx, session.ID); err != nil {
				log.Warn().Err(err).Msg("hangup failed")
			}
		} else {
			log.Info().Msg("cancelling match request")
			if err := c.CancelMatch(handle); err != nil {
				log.Warn().Err(err).Msg("cancel failed")
			}
		}
	case err := <-matchFailed:
		log.Error().Err(err).Msg("no match found")
	case event := <-ended:
		log.Info().
			Err(event.Err).
			Str("sessionId", event.SessionID).
			Str("reason", string(event.Reason)).
			Msg("call over")
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
