package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(order *[]string, name string) func(context.Context) (Release, error) {
	return func(context.Context) (Release, error) {
		*order = append(*order, "acquire "+name)
		return func(context.Context) error {
			*order = append(*order, "release "+name)
			return nil
		}, nil
	}
}

func TestStack_ReleasesInReverseOrder(t *testing.T) {
	ctx := context.Background()
	var order []string
	var s Stack

	require.NoError(t, s.Acquire(ctx, "store", step(&order, "store")))
	require.NoError(t, s.Acquire(ctx, "producer", step(&order, "producer")))
	require.NoError(t, s.Acquire(ctx, "pipeline", step(&order, "pipeline")))
	assert.Equal(t, 3, s.Len())

	require.NoError(t, s.Release(ctx))
	assert.Equal(t, []string{
		"acquire store", "acquire producer", "acquire pipeline",
		"release pipeline", "release producer", "release store",
	}, order)

	// A second release is a no-op.
	require.NoError(t, s.Release(ctx))
	assert.Len(t, order, 6)
}

func TestStack_FailedAcquireReleasesEarlierSteps(t *testing.T) {
	ctx := context.Background()
	var order []string
	var s Stack

	require.NoError(t, s.Acquire(ctx, "store", step(&order, "store")))
	require.NoError(t, s.Acquire(ctx, "producer", step(&order, "producer")))

	boom := errors.New("no broker")
	err := s.Acquire(ctx, "pipeline", func(context.Context) (Release, error) { return nil, boom })

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "acquire pipeline")
	assert.Equal(t, []string{"acquire store", "acquire producer", "release producer", "release store"}, order)
	assert.Zero(t, s.Len())
}

func TestStack_ReleaseRunsAllAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	var order []string
	var s Stack

	s.Push("store", func(context.Context) error {
		order = append(order, "store")
		return errors.New("close store")
	})
	s.Push("nil", nil)
	s.Push("producer", func(context.Context) error {
		order = append(order, "producer")
		return errors.New("close producer")
	})

	err := s.Release(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release store")
	assert.Contains(t, err.Error(), "release producer")
	assert.Equal(t, []string{"producer", "store"}, order)
}
