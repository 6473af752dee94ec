// Package aggregate turns the continuous per-second tick stream into rolling
// one-minute average records, one series per (exchange, asset) key. The
// series double as the daily JSON artifacts: the collector persists them to
// object storage and reloads them through ReplaceSeries on restart.
package aggregate

import (
	"time"

	"github.com/mpaquette/depthmetrics/internal/domain"
)

// maxSeriesLen caps a series at one calendar day of minutes. On overflow the
// oldest records are truncated.
const maxSeriesLen = 1440

// Sample is one tick's worth of metrics for a series. Nil metric values are
// treated as zero contribution but still count toward the shared sample
// count, biasing the average toward zero during data gaps. That trade-off is
// intentional and downstream consumers rely on it; do not track per-metric
// valid counts.
type Sample struct {
	Exchange string
	Asset    string
	Time     time.Time

	Price          *float64
	SpreadRaw      *float64
	SpreadL5Pct    *float64
	SpreadL20Pct   *float64
	SpreadL50Pct   *float64
	SpreadL100Pct  *float64
	SpreadL5000Pct *float64
	BidVolumeL50   *float64
	AskVolumeL50   *float64
}

// accumulator holds the running sums for the in-progress minute of one key.
type accumulator struct {
	bucket   time.Time
	exchange string
	asset    string
	n        int

	priceSum     float64
	spreadRawSum float64
	s5Sum        float64
	s20Sum       float64
	s50Sum       float64
	s100Sum      float64
	s5000Sum     float64
	s5000Seen    bool
	bidV50Sum    float64
	askV50Sum    float64
}

// Averager is the minute-bucketed streaming aggregator. It is written to by
// a single goroutine (the collector loop); it performs no internal locking.
// Ticks for a given key must arrive in non-decreasing timestamp order — a
// late tick that crosses an already-finalized minute boundary is folded into
// the wrong bucket silently.
type Averager struct {
	state  map[string]*accumulator
	series map[string][]domain.AverageRecord
}

// New creates an empty Averager.
func New() *Averager {
	return &Averager{
		state:  make(map[string]*accumulator),
		series: make(map[string][]domain.AverageRecord),
	}
}

// MinuteBucket truncates t to its UTC minute (seconds and sub-seconds
// zeroed). Two timestamps in the same UTC minute always map to the same
// bucket.
func MinuteBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// Add ingests one tick. On a minute rollover for the key, the open
// accumulator is finalized into an AverageRecord and appended to the series
// before a fresh accumulator is seeded with this tick. Malformed or nil
// inputs degrade to zero contribution; Add never fails.
func (a *Averager) Add(s Sample) {
	key := domain.SeriesKey(s.Exchange, s.Asset)
	bucket := MinuteBucket(s.Time)

	st := a.state[key]
	if st == nil || !st.bucket.Equal(bucket) {
		if st != nil {
			a.append(key, st.finalize())
		}
		st = &accumulator{
			bucket:   bucket,
			exchange: s.Exchange,
			asset:    s.Asset,
		}
		a.state[key] = st
	}
	st.add(s)
}

// ReplaceSeries overwrites the key's series with externally supplied records
// (as loaded from persisted storage) and discards any in-progress
// accumulator for that key. Calling it again with the same data is a no-op
// in effect.
func (a *Averager) ReplaceSeries(key string, records []domain.AverageRecord) {
	a.series[key] = append([]domain.AverageRecord(nil), records...)
	delete(a.state, key)
}

// Series returns the finalized records for a key in chronological order.
// The returned slice is shared; callers must not mutate it.
func (a *Averager) Series(key string) []domain.AverageRecord {
	return a.series[key]
}

// HasSeries reports whether the key has been seeded (even with an empty
// series) via ReplaceSeries or a finalized minute.
func (a *Averager) HasSeries(key string) bool {
	_, ok := a.series[key]
	return ok
}

// Keys returns every key with a series, in no particular order.
func (a *Averager) Keys() []string {
	keys := make([]string, 0, len(a.series))
	for k := range a.series {
		keys = append(keys, k)
	}
	return keys
}

func (a *Averager) append(key string, rec domain.AverageRecord) {
	s := append(a.series[key], rec)
	if len(s) > maxSeriesLen {
		s = s[len(s)-maxSeriesLen:]
	}
	a.series[key] = s
}

func (st *accumulator) add(s Sample) {
	st.n++
	addIf(&st.priceSum, s.Price)
	addIf(&st.spreadRawSum, s.SpreadRaw)
	addIf(&st.s5Sum, s.SpreadL5Pct)
	addIf(&st.s20Sum, s.SpreadL20Pct)
	addIf(&st.s50Sum, s.SpreadL50Pct)
	addIf(&st.s100Sum, s.SpreadL100Pct)
	if s.SpreadL5000Pct != nil {
		st.s5000Sum += *s.SpreadL5000Pct
		st.s5000Seen = true
	}
	addIf(&st.bidV50Sum, s.BidVolumeL50)
	addIf(&st.askV50Sum, s.AskVolumeL50)
}

func addIf(dst *float64, v *float64) {
	if v != nil {
		*dst += *v
	}
}

func (st *accumulator) finalize() domain.AverageRecord {
	n := float64(st.n)
	if n < 1 {
		n = 1
	}
	rec := domain.AverageRecord{
		T:                st.bucket,
		Exchange:         st.exchange,
		Asset:            st.asset,
		PriceAvg:         st.priceSum / n,
		SpreadRawAvg:     st.spreadRawSum / n,
		SpreadL5PctAvg:   st.s5Sum / n,
		SpreadL20PctAvg:  st.s20Sum / n,
		SpreadL50PctAvg:  st.s50Sum / n,
		SpreadL100PctAvg: st.s100Sum / n,
		BidVolumeL50Avg:  st.bidV50Sum / n,
		AskVolumeL50Avg:  st.askV50Sum / n,
	}
	if st.s5000Seen {
		v := st.s5000Sum / n
		rec.SpreadL5000PctAvg = &v
	}
	return rec
}

// Flush finalizes every open accumulator into its series. Batch replays use
// it to close the trailing minute; the streaming collector never flushes
// mid-minute.
func (a *Averager) Flush() {
	for key, st := range a.state {
		a.append(key, st.finalize())
		delete(a.state, key)
	}
}

// OpenSampleCount returns the sample count of the in-progress accumulator
// for a key, or 0 if none is open. Used for introspection and tests.
func (a *Averager) OpenSampleCount(key string) int {
	if st := a.state[key]; st != nil {
		return st.n
	}
	return 0
}
