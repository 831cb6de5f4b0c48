//go:build integration

package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgeventbus "github.com/alanyang/portfolio-api/internal/adapter/postgres/eventbus"
	domaindocument "github.com/alanyang/portfolio-api/internal/domain/document"
	"github.com/alanyang/portfolio-api/internal/domain/event"
	"github.com/alanyang/portfolio-api/internal/testutil"
)

func TestEventBus_ListenNotify(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	bus := pgeventbus.New(pool)
	t.Cleanup(func() { _ = bus.Close() })
	ctx := context.Background()

	rec := testutil.NewEventRecorder()
	_, err := bus.Subscribe(ctx, event.ChannelFor(domaindocument.CollectionBlogs), rec.Handle)
	require.NoError(t, err)

	sent := event.New(event.TypeDocumentUpdated, domaindocument.CollectionBlogs, "abc")
	require.NoError(t, bus.Publish(ctx, sent))

	got := rec.WaitFor(1, 5*time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, sent.ID, got[0].ID)
	assert.Equal(t, event.TypeDocumentUpdated, got[0].Type)
	assert.Equal(t, "abc", got[0].DocumentID)
}

func TestEventBus_ListenSurvivesLostConnection(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	bus := pgeventbus.New(pool)
	t.Cleanup(func() { _ = bus.Close() })
	ctx := context.Background()

	rec := testutil.NewEventRecorder()
	_, err := bus.Subscribe(ctx, event.ChannelFor(domaindocument.CollectionProjects), rec.Handle)
	require.NoError(t, err)

	var killed int
	err = pool.QueryRow(ctx, `
		SELECT count(pg_terminate_backend(pid))
		  FROM pg_stat_activity
		 WHERE query = 'LISTEN portfolio_projects' AND pid <> pg_backend_pid()`).Scan(&killed)
	require.NoError(t, err)
	require.GreaterOrEqual(t, killed, 1)

	// Notifications sent before LISTEN is restored are lost, so keep sending.
	require.Eventually(t, func() bool {
		e := event.New(event.TypeDocumentCreated, domaindocument.CollectionProjects, "after-reconnect")
		if err := bus.Publish(ctx, e); err != nil {
			return false
		}
		return len(rec.WaitFor(1, 200*time.Millisecond)) > 0
	}, 10*time.Second, 100*time.Millisecond)

	assert.Equal(t, "after-reconnect", rec.Events()[0].DocumentID)
}

func TestEventBus_CloseAfterLostConnection(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	bus := pgeventbus.New(pool)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, event.ChannelFor(domaindocument.CollectionMessages), func(context.Context, event.Event) {})
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		  FROM pg_stat_activity
		 WHERE query = 'LISTEN portfolio_messages' AND pid <> pg_backend_pid()`)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Unsubscribe did not return after the connection was lost")
	}
	require.NoError(t, bus.Close())
}
