package domain

// PriceLevel is a single price+size entry in an orderbook. Price is a
// probability in (0,1); size is a share quantity.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSide names one side of an orderbook as it appears on the feed.
type BookSide string

const (
	SideBids BookSide = "bids"
	SideAsks BookSide = "asks"
)

// Valid reports whether s is one of the two known sides.
func (s BookSide) Valid() bool {
	return s == SideBids || s == SideAsks
}

// BookSnapshot is a full two-sided book for one market.
type BookSnapshot struct {
	MarketID string
	Bids     []PriceLevel
	Asks     []PriceLevel
}

// BookDelta is a single level change on one side of a book.
type BookDelta struct {
	MarketID string
	Side     BookSide
	Price    float64
	Size     float64 // <= 0 removes the level
}
