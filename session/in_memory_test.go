package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
)

// Interface compliance (compile-time assertion)
var (
	_ core.SessionStore = (*InMemoryStore)(nil)
	_ core.SessionStore = (*SQLiteStore)(nil)
)

// storeContract runs the shared SessionStore behavior against a fresh store.
func storeContract(t *testing.T, newStore func(t *testing.T) core.SessionStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		sess := core.NewSession("pricing", []string{"a", "b"}, 6)
		require.NoError(t, store.Create(ctx, sess))

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.Topic, got.Topic)
		assert.Equal(t, []string{"a", "b"}, got.Participants)
		assert.Equal(t, core.StatusOpen, got.Status)

		err = store.Create(ctx, sess)
		assert.ErrorIs(t, err, core.ErrDuplicateSessionID)
	})

	t.Run("get unknown", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("get returns copy", func(t *testing.T) {
		store := newStore(t)
		sess := core.NewSession("t", []string{"a"}, 2)
		require.NoError(t, store.Create(ctx, sess))

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		got.Participants[0] = "mutated"
		got.TurnCount = 99

		again, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "a", again.Participants[0])
		assert.Equal(t, 0, again.TurnCount)
	})

	t.Run("update commits on nil", func(t *testing.T) {
		store := newStore(t)
		sess := core.NewSession("t", []string{"a"}, 2)
		require.NoError(t, store.Create(ctx, sess))

		updated, err := store.Update(ctx, sess.ID, func(s *core.Session) error {
			s.TurnCount = 1
			s.Metadata.RaisedHand = true
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.TurnCount)

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.TurnCount)
		assert.True(t, got.Metadata.RaisedHand)
		assert.False(t, got.UpdatedAt.Before(sess.UpdatedAt))
	})

	t.Run("update aborts on error", func(t *testing.T) {
		store := newStore(t)
		sess := core.NewSession("t", []string{"a"}, 2)
		require.NoError(t, store.Create(ctx, sess))

		boom := errors.New("boom")
		_, err := store.Update(ctx, sess.ID, func(s *core.Session) error {
			s.TurnCount = 5
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.TurnCount)
	})

	t.Run("update unknown", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Update(ctx, "missing", func(*core.Session) error { return nil })
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("concurrent updates do not lose writes", func(t *testing.T) {
		store := newStore(t)
		sess := core.NewSession("t", []string{"a"}, 100)
		require.NoError(t, store.Create(ctx, sess))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Update(ctx, sess.ID, func(s *core.Session) error {
					s.Metadata.InterjectionSeq++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, got.Metadata.InterjectionSeq)
	})

	t.Run("messages keep append order", func(t *testing.T) {
		store := newStore(t)
		sess := core.NewSession("t", []string{"a", "b"}, 4)
		require.NoError(t, store.Create(ctx, sess))

		require.NoError(t, store.AppendMessage(ctx, core.NewMessage(sess.ID, "a", "first", 1)))
		require.NoError(t, store.AppendMessage(ctx, core.NewMessage(sess.ID, "b", "second", 2)))
		require.NoError(t, store.AppendMessage(ctx, core.NewMessage(sess.ID, "a", "third", 3)))

		msgs, err := store.ListMessages(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "first", msgs[0].Content)
		assert.Equal(t, "second", msgs[1].Content)
		assert.Equal(t, "third", msgs[2].Content)
		assert.Equal(t, core.SenderAgent, msgs[1].SenderType)
	})

	t.Run("append turn commits message and update together", func(t *testing.T) {
		store := newStore(t)
		sess := core.NewSession("t", []string{"a", "b"}, 4)
		require.NoError(t, store.Create(ctx, sess))

		got, err := store.AppendTurn(ctx, core.NewMessage(sess.ID, "a", "first", 1), func(s *core.Session) error {
			s.TurnCount = 1
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, got.TurnCount)

		boom := errors.New("turn count moved")
		_, err = store.AppendTurn(ctx, core.NewMessage(sess.ID, "b", "second", 1), func(s *core.Session) error {
			s.TurnCount = 2
			return boom
		})
		assert.ErrorIs(t, err, boom)

		msgs, err := store.ListMessages(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "first", msgs[0].Content)

		again, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, again.TurnCount)

		_, err = store.AppendTurn(ctx, core.NewMessage("missing", "a", "x", 1), func(*core.Session) error { return nil })
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("messages for unknown session", func(t *testing.T) {
		store := newStore(t)
		err := store.AppendMessage(ctx, core.NewMessage("missing", "a", "x", 1))
		assert.ErrorIs(t, err, core.ErrSessionNotFound)

		_, err = store.ListMessages(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("list", func(t *testing.T) {
		store := newStore(t)
		for _, topic := range []string{"one", "two"} {
			require.NoError(t, store.Create(ctx, core.NewSession(topic, []string{"a"}, 1)))
		}
		all, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestInMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) core.SessionStore {
		return NewInMemoryStore()
	})
}
