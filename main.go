package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/digitclash/server/internal/archive"
	"github.com/digitclash/server/internal/httpserver"
	"github.com/digitclash/server/internal/hub"
	"github.com/digitclash/server/internal/natsbridge"
	"github.com/digitclash/server/internal/session"
	"github.com/digitclash/server/internal/store"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	db, err := openDB(getEnv("DB_PATH", "./data/digitclash.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("apply migrations")
	}

	ctx := context.Background()

	h := hub.New()
	reg := store.NewMemoryRegistry()
	arch := archive.New(db)
	svc := session.New(reg, h, arch, session.Config{
		HeartbeatGrace:  envDur("HEARTBEAT_GRACE", 30*time.Second),
		RoomTTL:         envDur("ROOM_TTL", 30*time.Minute),
		FinishedTTL:     envDur("FINISHED_TTL", 10*time.Minute),
		JanitorInterval: envDur("JANITOR_INTERVAL", 5*time.Second),
	})
	go svc.RunJanitor(ctx)

	if url := os.Getenv("NATS_URL"); url != "" {
		bridge, err := natsbridge.Connect(url, getEnv("NATS_SUBJECT_PREFIX", "digitclash"), h)
		if err != nil {
			log.Warn().Err(err).Msg("nats bridge disabled")
		} else {
			go bridge.Run(ctx)
		}
	}

	srv := httpserver.New(svc, h, arch)
	port := getEnv("PORT", "5175")
	log.Info().Str("port", port).Msg("starting digitclash server")
	if err := srv.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", k).Str("value", v).Msg("bad duration, using default")
	}
	return def
}
