package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestService_AppendRequiresEntityAndAction(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	require.ErrorIs(t, svc.Append(ctx, Event{EntityID: "T1", Action: ActionCreated}), ErrInvalidEvent)
	require.ErrorIs(t, svc.Append(ctx, Event{Entity: "trunk", Action: ActionCreated}), ErrInvalidEvent)
	require.ErrorIs(t, svc.Append(ctx, Event{Entity: "trunk", EntityID: "T1"}), ErrInvalidEvent)
}

func TestService_RecordCapturesActor(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0) }

	ctx := WithActor(context.Background(), Actor{ID: "op-1", Role: "admin", IP: "1.2.3.4", RequestID: "req-1"})
	require.NoError(t, svc.Record(ctx, "credential", "CR1", ActionRotated, "password rotated", map[string]int{"rotations": 2}))

	evs := repo.Events()
	require.Len(t, evs, 1)
	e := evs[0]
	require.Equal(t, "credential.rotated", e.Name())
	require.Equal(t, "op-1", e.ActorID)
	require.Equal(t, "1.2.3.4", e.IPAddress)
	require.Equal(t, "req-1", e.RequestID)
	require.NotEmpty(t, e.ID)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), e.CreatedAt)
	require.JSONEq(t, `{"rotations":2}`, string(e.Metadata))
}

func TestMemoryRepo_ListNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for _, id := range []string{"T1", "T2", "T1"} {
		require.NoError(t, svc.Record(ctx, "trunk", id, ActionUpdated, "", nil))
	}
	require.NoError(t, svc.Record(ctx, "plan", "PRO", ActionCreated, "", json.RawMessage(`{"code":"PRO"}`)))

	evs, err := svc.List(ctx, Filter{Entity: "trunk", EntityID: "T1"})
	require.NoError(t, err)
	require.Len(t, evs, 2)

	evs, err = svc.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, "plan", evs[0].Entity)
}
