package interfaces

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("get dept: %w", NotFound("dept", 7))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrInvalidFilter)
	assert.Equal(t, CodeNotFound, ErrorCode(err))
	assert.Contains(t, err.Error(), "record 7 not found")
}

func TestStoreUnavailable_KeepsCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := StoreUnavailable("ping", cause)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvalidIdentifier(t *testing.T) {
	err := InvalidIdentifier("xyz", errors.New("bad hex"))

	require.ErrorIs(t, err, ErrInvalidIdentifier)
	assert.Contains(t, err.Error(), `"xyz"`)
}

func TestErrorCode_NonRepositoryError(t *testing.T) {
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
}

func TestActorContext(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	actor, ok := ActorFromContext(WithActor(context.Background(), int64(3)))
	require.True(t, ok)
	assert.Equal(t, int64(3), actor)
}

func TestParseOrder(t *testing.T) {
	assert.Nil(t, ParseOrder("", ""))
	assert.Equal(t, &Order{Desc: true}, ParseOrder("", "descending"))
	assert.Equal(t, &Order{Field: "sort"}, ParseOrder("sort", "asc"))
	assert.Equal(t, &Order{Field: "sort", Desc: true}, ParseOrder("sort", "desc"))
}
