package domain

import "time"

// FeedSource names a market-data feed.
type FeedSource string

const (
	FeedVIP     FeedSource = "vip"
	FeedBetfair FeedSource = "betfair"
)

// RecordHeader carries what every record variant shares.
type RecordHeader struct {
	MatchID    string
	Raw        string
	ReceivedAt time.Time
}

// Record is the closed set MatchInfoRecord | InitOddsRecord | UpdateOddsRecord.
type Record interface {
	Header() RecordHeader
	sealed()
}

// OddsQuote is the payload common to both odds record variants.
type OddsQuote struct {
	Half    Half
	Market  Market
	Bookie  BookieID
	BetData string
	// Line is NoLine for 1x2 and 1or2.
	Line   float64
	Prices []float64
	Lay    bool
}

// Key returns the market key of the quote.
func (q OddsQuote) Key() MarketKey { return MarketKey{Half: q.Half, Market: q.Market} }

// MatchInfoRecord replaces a match's descriptive info.
type MatchInfoRecord struct {
	RecordHeader
	Info MatchInfo
}

// InitOddsRecord is an odds quote from the initial snapshot.
type InitOddsRecord struct {
	RecordHeader
	Quote OddsQuote
}

// UpdateOddsRecord is an incremental odds quote. UpdateID is strictly
// increasing per match on the VIP feed.
type UpdateOddsRecord struct {
	RecordHeader
	Source   FeedSource
	UpdateID int64
	Quote    OddsQuote
}

func (r MatchInfoRecord) Header() RecordHeader  { return r.RecordHeader }
func (r InitOddsRecord) Header() RecordHeader   { return r.RecordHeader }
func (r UpdateOddsRecord) Header() RecordHeader { return r.RecordHeader }

func (MatchInfoRecord) sealed()  {}
func (InitOddsRecord) sealed()   {}
func (UpdateOddsRecord) sealed() {}

// Batch is an immutable group of records decoded from one packet. Snapshot
// marks the initial packet of a feed session.
type Batch struct {
	Source   FeedSource
	Snapshot bool
	Records  []Record
	// QueuedAt is set by the producer for queue-latency accounting.
	QueuedAt time.Time
}
