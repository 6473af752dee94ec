package aggregate

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/mpaquette/depthmetrics/internal/domain"
)

func fp(v float64) *float64 { return &v }

func sampleAt(t time.Time, price *float64) Sample {
	return Sample{
		Exchange: "coinbase",
		Asset:    "ADA",
		Time:     t,
		Price:    price,
	}
}

func TestMinuteBucket(t *testing.T) {
	ts := time.Date(2025, 8, 28, 14, 3, 7, 123456789, time.UTC)
	want := time.Date(2025, 8, 28, 14, 3, 0, 0, time.UTC)
	if got := MinuteBucket(ts); !got.Equal(want) {
		t.Errorf("MinuteBucket = %v, want %v", got, want)
	}
	// Same minute, different second: same bucket.
	if got := MinuteBucket(ts.Add(40 * time.Second)); !got.Equal(want) {
		t.Errorf("MinuteBucket(+40s) = %v, want %v", got, want)
	}
}

func TestNullsCountTowardSharedN(t *testing.T) {
	a := New()
	base := time.Date(2025, 8, 28, 14, 3, 0, 0, time.UTC)

	// Three ticks: 10, nil, 20. Nulls contribute 0 but count toward n,
	// so the average is (10+0+20)/3, not (10+20)/2.
	a.Add(sampleAt(base, fp(10)))
	a.Add(sampleAt(base.Add(time.Second), nil))
	a.Add(sampleAt(base.Add(2*time.Second), fp(20)))

	// Roll into the next minute to finalize.
	a.Add(sampleAt(base.Add(time.Minute), fp(99)))

	key := domain.SeriesKey("coinbase", "ADA")
	series := a.Series(key)
	if len(series) != 1 {
		t.Fatalf("series length = %d, want 1", len(series))
	}
	want := 30.0 / 3.0
	if math.Abs(series[0].PriceAvg-want) > 1e-12 {
		t.Errorf("PriceAvg = %v, want %v (nulls bias toward zero)", series[0].PriceAvg, want)
	}
}

func TestMinuteRollover61Ticks(t *testing.T) {
	a := New()
	start := time.Date(2025, 8, 28, 14, 3, 0, 0, time.UTC)

	// 61 ticks at one per second: seconds 0..59 land in the first minute,
	// second 60 opens the next.
	for i := 0; i < 61; i++ {
		a.Add(sampleAt(start.Add(time.Duration(i)*time.Second), fp(2.0)))
	}

	key := domain.SeriesKey("coinbase", "ADA")
	series := a.Series(key)
	if len(series) != 1 {
		t.Fatalf("series length = %d, want 1", len(series))
	}
	rec := series[0]
	if !rec.T.Equal(start) {
		t.Errorf("record bucket = %v, want %v", rec.T, start)
	}
	if rec.PriceAvg != 2.0 {
		t.Errorf("PriceAvg = %v, want 2.0", rec.PriceAvg)
	}
	if got := a.OpenSampleCount(key); got != 1 {
		t.Errorf("open accumulator n = %d, want 1", got)
	}
}

func TestSeriesCap(t *testing.T) {
	a := New()
	start := time.Date(2025, 8, 27, 0, 0, 0, 0, time.UTC)

	// 1442 minutes of one tick each: 1441 finalized records would overflow
	// the cap, so the series keeps the most recent 1440.
	for i := 0; i < 1442; i++ {
		a.Add(sampleAt(start.Add(time.Duration(i)*time.Minute), fp(float64(i))))
	}

	key := domain.SeriesKey("coinbase", "ADA")
	series := a.Series(key)
	if len(series) != 1440 {
		t.Fatalf("series length = %d, want 1440", len(series))
	}
	// Oldest record (minute 0) dropped; series starts at minute 1.
	if !series[0].T.Equal(start.Add(time.Minute)) {
		t.Errorf("oldest record = %v, want %v", series[0].T, start.Add(time.Minute))
	}
	if !series[1439].T.Equal(start.Add(1440 * time.Minute)) {
		t.Errorf("newest record = %v, want %v", series[1439].T, start.Add(1440*time.Minute))
	}
}

func TestReplaceSeriesClearsAccumulator(t *testing.T) {
	a := New()
	base := time.Date(2025, 8, 28, 14, 3, 0, 0, time.UTC)
	key := domain.SeriesKey("coinbase", "ADA")

	// Open an accumulator with a large value that must not leak.
	a.Add(sampleAt(base, fp(1e9)))

	loaded := []domain.AverageRecord{
		{T: base.Add(-time.Minute), Exchange: "coinbase", Asset: "ADA", PriceAvg: 5.0},
	}
	a.ReplaceSeries(key, loaded)

	if got := a.OpenSampleCount(key); got != 0 {
		t.Fatalf("open accumulator n = %d after replace, want 0", got)
	}

	// Next tick in a new minute starts fresh: no contamination from the
	// discarded partial minute.
	a.Add(sampleAt(base.Add(time.Minute), fp(10)))
	a.Add(sampleAt(base.Add(2*time.Minute), fp(10)))

	series := a.Series(key)
	if len(series) != 2 {
		t.Fatalf("series length = %d, want 2", len(series))
	}
	if series[1].PriceAvg != 10.0 {
		t.Errorf("PriceAvg = %v, want 10.0", series[1].PriceAvg)
	}
}

func TestReplaceSeriesIdempotent(t *testing.T) {
	a := New()
	key := domain.SeriesKey("kraken", "BTC")
	rows := []domain.AverageRecord{
		{T: time.Date(2025, 8, 28, 0, 0, 0, 0, time.UTC), Exchange: "kraken", Asset: "BTC", PriceAvg: 1},
		{T: time.Date(2025, 8, 28, 0, 1, 0, 0, time.UTC), Exchange: "kraken", Asset: "BTC", PriceAvg: 2},
	}
	a.ReplaceSeries(key, rows)
	a.ReplaceSeries(key, rows)
	if got := a.Series(key); !reflect.DeepEqual(got, rows) {
		t.Errorf("series after double replace = %+v, want %+v", got, rows)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	a := New()
	base := time.Date(2025, 8, 28, 14, 0, 0, 0, time.UTC)
	key := domain.SeriesKey("binanceus", "ETH")

	deep := 0.42
	for i := 0; i < 3; i++ {
		a.Add(Sample{
			Exchange:       "binanceus",
			Asset:          "ETH",
			Time:           base.Add(time.Duration(i) * time.Minute),
			Price:          fp(3000 + float64(i)),
			SpreadRaw:      fp(0.5),
			SpreadL5Pct:    fp(0.01),
			SpreadL20Pct:   fp(0.02),
			SpreadL50Pct:   fp(0.03),
			SpreadL100Pct:  fp(0.04),
			SpreadL5000Pct: &deep,
			BidVolumeL50:   fp(100),
			AskVolumeL50:   fp(120),
		})
	}

	orig := a.Series(key)
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal series: %v", err)
	}
	var loaded []domain.AverageRecord
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal series: %v", err)
	}

	b := New()
	b.ReplaceSeries(key, loaded)
	got := b.Series(key)
	if len(got) != len(orig) {
		t.Fatalf("round-trip length = %d, want %d", len(got), len(orig))
	}
	for i := range orig {
		if !got[i].T.Equal(orig[i].T) || got[i].PriceAvg != orig[i].PriceAvg {
			t.Errorf("record %d = %+v, want %+v", i, got[i], orig[i])
		}
		if (got[i].SpreadL5000PctAvg == nil) != (orig[i].SpreadL5000PctAvg == nil) {
			t.Errorf("record %d L5000 presence mismatch", i)
		}
	}
}

func TestKeysAreIndependent(t *testing.T) {
	a := New()
	base := time.Date(2025, 8, 28, 9, 0, 0, 0, time.UTC)

	a.Add(Sample{Exchange: "coinbase", Asset: "ADA", Time: base, Price: fp(1)})
	a.Add(Sample{Exchange: "kraken", Asset: "ADA", Time: base, Price: fp(2)})
	a.Add(Sample{Exchange: "coinbase", Asset: "ADA", Time: base.Add(time.Minute), Price: fp(1)})

	if got := len(a.Series(domain.SeriesKey("coinbase", "ADA"))); got != 1 {
		t.Errorf("coinbase:ADA series length = %d, want 1", got)
	}
	if got := len(a.Series(domain.SeriesKey("kraken", "ADA"))); got != 0 {
		t.Errorf("kraken:ADA series length = %d, want 0 (minute still open)", got)
	}
}
