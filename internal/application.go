package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/rocketscienceinc/tictactoe-duel/internal/config"
	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/repository"
	"github.com/rocketscienceinc/tictactoe-duel/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-duel/transport/rest"
	"github.com/rocketscienceinc/tictactoe-duel/transport/websocket"
	"golang.org/x/sync/errgroup"
)

const drainTimeout = 5 * time.Second

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application until SIGINT or SIGTERM.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	difficulty, err := entity.ParseDifficulty(conf.AI.Difficulty)
	if err != nil {
		return fmt.Errorf("invalid ai difficulty: %w", err)
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, logger, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	roomRepo := repository.NewRoomRepository(logger, redisStorage.Connection)
	presenceRepo := repository.NewPresenceRepository(logger, redisStorage.Connection, conf.Presence.Heartbeat, conf.Presence.TTL)
	store := repository.NewStore(logger, roomRepo, presenceRepo)

	wsServer := websocket.New(logger, store, websocket.Options{
		Difficulty: difficulty,
		ThinkDelay: conf.AI.ThinkDelay,
	})
	router := rest.NewRouter(rest.NewHandlers(logger, difficulty, nil), wsServer)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)

		if httpErr := rest.Start(groupCtx, conf.HTTPPort, router); httpErr != nil {
			return fmt.Errorf("HTTP server error: %w", httpErr)
		}

		return nil
	})

	// websocket connections are hijacked, so the HTTP shutdown does not wait for them;
	// they must leave their rooms before redis is closed
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("Application context canceled, shutting down")

		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), drainTimeout)
		defer cancel()

		if err := wsServer.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("websocket shutdown error: %w", err)
		}

		return nil
	})

	return group.Wait()
}
