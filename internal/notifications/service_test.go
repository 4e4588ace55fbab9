package notifications

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/internal/store/bolt"
)

type stubPublisher struct {
	mu        sync.Mutex
	published []models.Notification
	err       error
}

func (p *stubPublisher) PublishNotification(_ context.Context, n models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, n)
	return p.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := bolt.Open(filepath.Join(t.TempDir(), "notifications.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestNotifyStoresAndPublishes(t *testing.T) {
	pub := &stubPublisher{}
	svc := NewService(newTestStore(t), pub, nil)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, svc.Notify(ctx, user, "Meeting invitation", "You are invited"))

	list, err := svc.List(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Meeting invitation", list[0].Title)
	assert.Nil(t, list[0].ReadAt)

	require.Len(t, pub.published, 1)
	assert.Equal(t, list[0].ID, pub.published[0].ID)
}

func TestNotifySucceedsWhenPublishFails(t *testing.T) {
	pub := &stubPublisher{err: errors.New("redis down")}
	svc := NewService(newTestStore(t), pub, nil)
	user := uuid.New()

	require.NoError(t, svc.Notify(context.Background(), user, "t", "c"))
	list, err := svc.List(context.Background(), user, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMarkReadIsScopedToOwner(t *testing.T) {
	svc := NewService(newTestStore(t), nil, nil)
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()

	require.NoError(t, svc.Notify(ctx, owner, "t", "c"))
	list, err := svc.List(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	err = svc.MarkRead(ctx, list[0].ID, other)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, svc.MarkRead(ctx, list[0].ID, owner))
	list, err = svc.List(ctx, owner, 10)
	require.NoError(t, err)
	assert.NotNil(t, list[0].ReadAt)
}

func TestRedisPubSubDeliversToSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ps := NewRedisPubSub(client, nil)
	user := uuid.New()

	got := make(chan models.Notification, 1)
	cancel, err := ps.Subscribe(user, func(n models.Notification) { got <- n })
	require.NoError(t, err)
	defer cancel()

	sent := models.Notification{ID: uuid.New(), UserID: user, Title: "Reminder", CreatedAt: time.Now().UTC()}
	require.NoError(t, ps.PublishNotification(context.Background(), sent))

	select {
	case n := <-got:
		assert.Equal(t, sent.ID, n.ID)
		assert.Equal(t, "Reminder", n.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}
