package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlacer struct {
	mu     sync.Mutex
	seen   []string
	failOn map[string]bool
}

func (f *fakePlacer) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req.MarketID)
	f.mu.Unlock()
	if f.failOn[req.MarketID] {
		return domain.OrderAck{}, errors.New("rejected " + req.MarketID)
	}
	return domain.OrderAck{OrderID: "id-" + req.MarketID}, nil
}

func TestPlaceLegs_AllSucceed(t *testing.T) {
	p := &fakePlacer{}
	acks, err := PlaceLegs(context.Background(), p, []domain.OrderRequest{{MarketID: "a"}, {MarketID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, "id-a", acks[0].OrderID)
	assert.Equal(t, "id-b", acks[1].OrderID)
}

func TestPlaceLegs_OneFailsOthersStillSent(t *testing.T) {
	p := &fakePlacer{failOn: map[string]bool{"b": true}}
	acks, err := PlaceLegs(context.Background(), p, []domain.OrderRequest{{MarketID: "a"}, {MarketID: "b"}})
	require.Error(t, err)

	var legErr *LegError
	require.ErrorAs(t, err, &legErr)
	assert.Equal(t, []int{1}, legErr.Failed)
	assert.Contains(t, err.Error(), "rejected b")

	assert.ElementsMatch(t, []string{"a", "b"}, p.seen)
	assert.Equal(t, "id-a", acks[0].OrderID)
	assert.Empty(t, acks[1].OrderID)
}

func TestCooldown(t *testing.T) {
	c := NewCooldown(time.Second)
	t0 := time.Unix(100, 0)

	assert.True(t, c.Allow("m", t0))
	assert.False(t, c.Allow("m", t0.Add(999*time.Millisecond)))
	assert.True(t, c.Allow("other", t0))
	assert.True(t, c.Allow("m", t0.Add(time.Second)))

	c.Cleanup(t0.Add(3 * time.Second))
	assert.Zero(t, c.Len())
}
