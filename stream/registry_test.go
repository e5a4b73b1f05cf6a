package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OpenClose(t *testing.T) {
	r := NewRegistry(nil, nil)

	sub, ctx := r.Open(context.Background(), "CA908")
	require.NotEmpty(t, sub.ID)
	assert.Equal(t, "CA908", sub.Key)
	assert.Equal(t, 1, r.Len())
	assert.NoError(t, ctx.Err())

	r.Close(sub)
	assert.Equal(t, 0, r.Len())
	assert.Error(t, ctx.Err(), "closing cancels the coordinator context")
}

func TestRegistry_CloseIdempotent(t *testing.T) {
	r := NewRegistry(nil, nil)
	sub, _ := r.Open(context.Background(), "CA908")

	// Failure-path cleanup and normal teardown may both close.
	r.Close(sub)
	r.Close(sub)
	r.Close(nil)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_EntriesNotSharedAcrossIdenticalTargets(t *testing.T) {
	r := NewRegistry(nil, nil)

	a, _ := r.Open(context.Background(), "CA908")
	b, _ := r.Open(context.Background(), "CA908")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Len())

	r.Close(a)
	assert.Equal(t, 1, r.Len())
	r.Close(b)
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(nil, nil)
	_, ctxA := r.Open(context.Background(), "a")
	_, ctxB := r.Open(context.Background(), "b")

	r.CloseAll()

	assert.Equal(t, 0, r.Len())
	assert.Error(t, ctxA.Err())
	assert.Error(t, ctxB.Err())
}

func TestRegistry_ParentCancellationPropagates(t *testing.T) {
	r := NewRegistry(nil, nil)
	parent, cancel := context.WithCancel(context.Background())

	sub, ctx := r.Open(parent, "CA908")
	cancel()
	assert.Error(t, ctx.Err())

	// The entry is removed on Close, not on parent cancellation.
	assert.Equal(t, 1, r.Len())
	r.Close(sub)
	assert.Equal(t, 0, r.Len())
}
