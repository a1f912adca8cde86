package waitlist

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/class-reservation/internal/booking"
	"github.com/iliyamo/class-reservation/internal/model"
)

type stubStore struct {
	entries []model.Reservation
	writes  map[uint64]int
	err     error
}

func (s *stubStore) ListWaitlistedTx(context.Context, *sql.Tx, uint64) ([]model.Reservation, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.Reservation, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *stubStore) SetWaitlistPositionTx(_ context.Context, _ *sql.Tx, id uint64, position int) error {
	if s.writes == nil {
		s.writes = map[uint64]int{}
	}
	s.writes[id] = position
	return nil
}

var base = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func waiting(id uint64, offset time.Duration, position int) model.Reservation {
	p := position
	return model.Reservation{ID: id, Status: booking.Waitlisted, BookedAt: base.Add(offset), WaitlistPosition: &p}
}

func TestOrder(t *testing.T) {
	entries := []model.Reservation{
		waiting(3, time.Second, 0),
		waiting(9, 0, 0),
		waiting(2, time.Second, 0),
	}
	Order(entries)
	assert.Equal(t, []uint64{9, 2, 3}, []uint64{entries[0].ID, entries[1].ID, entries[2].ID})
}

func TestAdmit(t *testing.T) {
	m := NewManager(&stubStore{entries: []model.Reservation{waiting(1, 0, 1), waiting(2, time.Second, 2)}})
	pos, err := m.Admit(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	pos, err = NewManager(&stubStore{}).Admit(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestPromoteReturnsHead(t *testing.T) {
	store := &stubStore{entries: []model.Reservation{waiting(5, 2*time.Second, 2), waiting(4, time.Second, 1)}}
	head, err := NewManager(store).Promote(context.Background(), nil, 1)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, uint64(4), head.ID)

	head, err = NewManager(&stubStore{}).Promote(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestRetractRenumbersOnlyStalePositions(t *testing.T) {
	store := &stubStore{entries: []model.Reservation{
		waiting(1, 0, 1),
		waiting(3, 2*time.Second, 3),
		waiting(4, 3*time.Second, 4),
	}}
	require.NoError(t, NewManager(store).Retract(context.Background(), nil, 1))
	assert.Equal(t, map[uint64]int{3: 2, 4: 3}, store.writes)
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	boom := errors.New("boom")
	m := NewManager(&stubStore{err: boom})
	_, err := m.Admit(context.Background(), nil, 7)
	assert.ErrorIs(t, err, boom)
	_, err = m.Promote(context.Background(), nil, 7)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.Retract(context.Background(), nil, 7), boom)
}
