package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/session"
)

// RoomRepository keeps room records as JSON and publishes every update on the room channel.
type RoomRepository interface {
	Fetch(ctx context.Context, roomID string) (*entity.Record, error)
	Create(ctx context.Context, roomID string, record *entity.Record) error
	Update(ctx context.Context, roomID string, record *entity.Record) error
	Delete(ctx context.Context, roomID string) error
	// Watch calls onUpdate for every update published after it returns, until stop is called.
	Watch(ctx context.Context, roomID string, onUpdate func(entity.Record)) (stop func(), err error)
}

type dbRoom struct {
	logger *slog.Logger
	client *redis.Client
}

func NewRoomRepository(logger *slog.Logger, client *redis.Client) RoomRepository {
	return &dbRoom{
		logger: logger.With("component", "room_repository"),
		client: client,
	}
}

func roomKey(roomID string) string {
	return "room:" + roomID
}

func roomChannel(roomID string) string {
	return "room:" + roomID + ":changes"
}

func (that *dbRoom) Fetch(ctx context.Context, roomID string) (*entity.Record, error) {
	response, err := that.client.Get(ctx, roomKey(roomID)).Result()

	if errors.Is(err, redis.Nil) {
		return nil, session.ErrRecordNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room by id: %w", err)
	}

	var record entity.Record
	if err = json.Unmarshal([]byte(response), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}

	return &record, nil
}

// Create stores the record only when the room does not exist yet.
func (that *dbRoom) Create(ctx context.Context, roomID string, record *entity.Record) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	created, err := that.client.SetNX(ctx, roomKey(roomID), recordJSON, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	if !created {
		that.logger.Debug("room already exists", "room_id", roomID)
	}

	return nil
}

func (that *dbRoom) Update(ctx context.Context, roomID string, record *entity.Record) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(roomID), recordJSON, 0)
		pipe.Publish(ctx, roomChannel(roomID), recordJSON)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}

	return nil
}

func (that *dbRoom) Delete(ctx context.Context, roomID string) error {
	if err := that.client.Del(ctx, roomKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete room by id: %w", err)
	}

	return nil
}

func (that *dbRoom) Watch(ctx context.Context, roomID string, onUpdate func(entity.Record)) (func(), error) {
	log := that.logger.With("method", "Watch", "room_id", roomID)

	pubsub := that.client.Subscribe(ctx, roomChannel(roomID))

	// wait for the subscription confirmation so no update published after Watch returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room: %w", err)
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		for msg := range pubsub.Channel() {
			var record entity.Record
			if err := json.Unmarshal([]byte(msg.Payload), &record); err != nil {
				log.Error("failed to unmarshal room update", "error", err)
				continue
			}

			onUpdate(record)
		}
	}()

	stop := func() {
		if err := pubsub.Close(); err != nil {
			log.Warn("failed to close room subscription", "error", err)
		}
		<-done
	}

	return stop, nil
}
