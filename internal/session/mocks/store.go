package mocks

import (
	"context"

	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/session"
	"github.com/stretchr/testify/mock"
)

type Store struct {
	mock.Mock
}

func (that *Store) Fetch(ctx context.Context, roomID string) (*entity.Record, error) {
	args := that.Called(ctx, roomID)

	record, _ := args.Get(0).(*entity.Record)

	return record, args.Error(1)
}

func (that *Store) Create(ctx context.Context, roomID string, record *entity.Record) error {
	return that.Called(ctx, roomID, record).Error(0)
}

func (that *Store) Update(ctx context.Context, roomID string, record *entity.Record) error {
	return that.Called(ctx, roomID, record).Error(0)
}

func (that *Store) Delete(ctx context.Context, roomID string) error {
	return that.Called(ctx, roomID).Error(0)
}

func (that *Store) SubscribeToChanges(ctx context.Context, roomID string, onUpdate func(entity.Record)) (session.Subscription, error) {
	args := that.Called(ctx, roomID, onUpdate)

	return args.Get(0).(session.Subscription), args.Error(1)
}

func (that *Store) SubscribeToPresence(ctx context.Context, roomID string, onRosterChange func(session.Roster)) (session.Subscription, error) {
	args := that.Called(ctx, roomID, onRosterChange)

	return args.Get(0).(session.Subscription), args.Error(1)
}

func (that *Store) TrackPresence(ctx context.Context, roomID, clientMarker string) (session.Subscription, error) {
	args := that.Called(ctx, roomID, clientMarker)

	return args.Get(0).(session.Subscription), args.Error(1)
}

func (that *Store) Unsubscribe(sub session.Subscription) error {
	return that.Called(sub).Error(0)
}
