package ads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromiseResolvesOnce(t *testing.T) {
	p := newPromise()
	_, ok := p.Outcome()
	require.False(t, ok)

	assert.True(t, p.resolve(Succeeded("a")))
	assert.False(t, p.resolve(Failed(errors.New("late"))))

	out, ok := p.Outcome()
	require.True(t, ok)
	assert.Equal(t, Identifier("a"), out.ID)
	assert.NoError(t, out.Err)

	select {
	case <-p.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestPromiseWaitHonorsContext(t *testing.T) {
	p := newPromise()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	p.resolve(Failed(ErrLoadTimeout))
	out, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err, ErrLoadTimeout)
}

func TestResolvedPromise(t *testing.T) {
	p := resolvedPromise(Failed(&LoadError{Message: "boom", Code: 1}))
	out, ok := p.Outcome()
	require.True(t, ok)
	var lerr *LoadError
	require.ErrorAs(t, out.Err, &lerr)
	assert.Equal(t, "ad load error 1: boom", lerr.Error())
}
