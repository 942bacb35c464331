package feed_test

import (
	"testing"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SnapshotVariants(t *testing.T) {
	cases := map[string]string{
		"type":          `{"type":"book_snapshot","marketId":"m1","bids":[[0.5,10]],"asks":[[0.52,3]]}`,
		"event":         `{"event":"book_snapshot","marketId":"m1","bids":[[0.5,10]],"asks":[[0.52,3]]}`,
		"channel":       `{"channel":"book","type":"snapshot","market":"m1","bids":[[0.5,10]],"asks":[[0.52,3]]}`,
		"objectLevels":  `{"type":"book_snapshot","marketId":"m1","bids":[{"price":0.5,"size":10}],"asks":[{"price":"0.52","size":"3"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			msg, ok := feed.Parse([]byte(raw))
			require.True(t, ok)
			assert.Equal(t, feed.KindSnapshot, msg.Kind)
			assert.Equal(t, "m1", msg.MarketID())
			assert.Equal(t, []domain.PriceLevel{{Price: 0.5, Size: 10}}, msg.Snapshot.Bids)
			assert.Equal(t, []domain.PriceLevel{{Price: 0.52, Size: 3}}, msg.Snapshot.Asks)
		})
	}
}

func TestParse_MarketIDPrefersMarketIdField(t *testing.T) {
	msg, ok := feed.Parse([]byte(`{"type":"book_snapshot","marketId":"a","market":"b","bids":[],"asks":[]}`))
	require.True(t, ok)
	assert.Equal(t, "a", msg.MarketID())
}

func TestParse_Delta(t *testing.T) {
	msg, ok := feed.Parse([]byte(`{"type":"book_delta","marketId":"m1","side":"asks","price":0.6,"size":0}`))
	require.True(t, ok)
	assert.Equal(t, feed.KindDelta, msg.Kind)
	assert.Equal(t, domain.BookDelta{MarketID: "m1", Side: domain.SideAsks, Price: 0.6, Size: 0}, msg.Delta)

	msg, ok = feed.Parse([]byte(`{"channel":"book","type":"delta","market":"m2","side":"bids","price":"0.41","size":"12"}`))
	require.True(t, ok)
	assert.Equal(t, "m2", msg.Delta.MarketID)
	assert.Equal(t, 0.41, msg.Delta.Price)
}

func TestParse_Ignored(t *testing.T) {
	cases := []string{
		`not json`,
		`{"type":"trade","marketId":"m1"}`,
		`{"channel":"trades","type":"snapshot","marketId":"m1"}`,
		`{"type":"book_snapshot","bids":[]}`,
		`{"type":"book_delta","marketId":"m1","side":"middle","price":0.5,"size":1}`,
		`{"type":"book_delta","marketId":"m1","side":"bids","price":"abc","size":1}`,
		`{"type":"book_delta","marketId":"m1","side":"bids","price":0.5}`,
	}
	for _, raw := range cases {
		_, ok := feed.Parse([]byte(raw))
		assert.False(t, ok, raw)
	}
}

func TestParseLevels_FiltersNonFinite(t *testing.T) {
	levels := feed.ParseLevels([]byte(`[[0.5,1],["x",2],[0.4],{"price":0.3},{"price":"NaN","size":1},{"price":0.2,"size":"5"},7,null]`))
	assert.Equal(t, []domain.PriceLevel{{Price: 0.5, Size: 1}, {Price: 0.2, Size: 5}}, levels)

	assert.Empty(t, feed.ParseLevels(nil))
	assert.Empty(t, feed.ParseLevels([]byte(`{"price":1}`)))
}

func TestParseFrame_Array(t *testing.T) {
	frame := `[
		{"type":"book_snapshot","marketId":"m1","bids":[[0.5,1]],"asks":[]},
		{"type":"heartbeat"},
		{"type":"book_delta","marketId":"m1","side":"bids","price":0.51,"size":2}
	]`
	msgs := feed.ParseFrame([]byte(frame))
	require.Len(t, msgs, 2)
	assert.Equal(t, feed.KindSnapshot, msgs[0].Kind)
	assert.Equal(t, feed.KindDelta, msgs[1].Kind)

	assert.Empty(t, feed.ParseFrame([]byte("  ")))
	assert.Len(t, feed.ParseFrame([]byte(`{"type":"book_delta","marketId":"x","side":"asks","price":1,"size":1}`)), 1)
}
