package repository

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceJoin  = "join"
	presenceLeave = "leave"
	presenceSweep = "sweep"
)

// PresenceRepository tracks which clients are in a room. Each client refreshes its entry on a
// heartbeat; entries older than the TTL are swept and the room is told about it.
type PresenceRepository interface {
	Track(ctx context.Context, roomID, marker string) (stop func(), err error)
	Members(ctx context.Context, roomID string) ([]string, error)
	// Watch delivers the current members and then every change until stop is called.
	Watch(ctx context.Context, roomID string, onChange func([]string)) (stop func(), err error)
}

type dbPresence struct {
	logger    *slog.Logger
	client    *redis.Client
	heartbeat time.Duration
	ttl       time.Duration
}

func NewPresenceRepository(logger *slog.Logger, client *redis.Client, heartbeat, ttl time.Duration) PresenceRepository {
	return &dbPresence{
		logger:    logger.With("component", "presence_repository"),
		client:    client,
		heartbeat: heartbeat,
		ttl:       ttl,
	}
}

func presenceKey(roomID string) string {
	return "room:" + roomID + ":presence"
}

func presenceChannel(roomID string) string {
	return "room:" + roomID + ":presence:events"
}

func (that *dbPresence) Track(ctx context.Context, roomID, marker string) (func(), error) {
	log := that.logger.With("method", "Track", "room_id", roomID, "marker", marker)

	if err := that.touch(ctx, roomID, marker); err != nil {
		return nil, err
	}

	if err := that.client.Publish(ctx, presenceChannel(roomID), presenceJoin).Err(); err != nil {
		return nil, fmt.Errorf("failed to publish presence: %w", err)
	}

	heartbeatCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(that.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				if err := that.touch(heartbeatCtx, roomID, marker); err != nil {
					log.Warn("failed to refresh presence", "error", err)
				}
			}
		}
	}()

	stop := func() {
		cancel()
		wg.Wait()

		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), that.heartbeat)
		defer leaveCancel()

		if err := that.client.ZRem(leaveCtx, presenceKey(roomID), marker).Err(); err != nil {
			log.Warn("failed to remove presence", "error", err)
			return
		}

		if err := that.client.Publish(leaveCtx, presenceChannel(roomID), presenceLeave).Err(); err != nil {
			log.Warn("failed to publish presence leave", "error", err)
		}
	}

	return stop, nil
}

// Members sweeps stale entries and returns the remaining markers sorted.
func (that *dbPresence) Members(ctx context.Context, roomID string) ([]string, error) {
	staleBefore := time.Now().Add(-that.ttl).UnixMilli()

	removed, err := that.client.ZRemRangeByScore(ctx, presenceKey(roomID), "-inf", "("+strconv.FormatInt(staleBefore, 10)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to sweep presence: %w", err)
	}

	if removed > 0 {
		that.logger.Info("stale presence swept", "room_id", roomID, "removed", removed)

		if err = that.client.Publish(ctx, presenceChannel(roomID), presenceSweep).Err(); err != nil {
			return nil, fmt.Errorf("failed to publish presence sweep: %w", err)
		}
	}

	members, err := that.client.ZRange(ctx, presenceKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	slices.Sort(members)

	return members, nil
}

func (that *dbPresence) Watch(ctx context.Context, roomID string, onChange func([]string)) (func(), error) {
	log := that.logger.With("method", "Watch", "room_id", roomID)

	pubsub := that.client.Subscribe(ctx, presenceChannel(roomID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to presence: %w", err)
	}

	members, err := that.Members(ctx, roomID)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	onChange(members)

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(that.heartbeat)
		defer ticker.Stop()

		last := members
		messages := pubsub.Channel()

		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
			case <-ticker.C:
			}

			current, err := that.Members(watchCtx, roomID)
			if err != nil {
				log.Warn("failed to read presence", "error", err)
				continue
			}

			if slices.Equal(current, last) {
				continue
			}

			last = current
			onChange(current)
		}
	}()

	stop := func() {
		cancel()
		if err := pubsub.Close(); err != nil {
			log.Warn("failed to close presence subscription", "error", err)
		}
		wg.Wait()
	}

	return stop, nil
}

func (that *dbPresence) touch(ctx context.Context, roomID, marker string) error {
	_, err := that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, presenceKey(roomID), redis.Z{Score: float64(time.Now().UnixMilli()), Member: marker})
		pipe.Expire(ctx, presenceKey(roomID), that.ttl)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}

	return nil
}
