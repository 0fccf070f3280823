package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"watchdash/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := map[string]string{
		"KRX:005930":      "005930.KS",
		"NASDAQ:TSLA":     "TSLA",
		"BINANCE:BTCUSDT": "BTCUSDT",
		"AAPL":            "AAPL",
		" 005930.KS ":     "005930.KS",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeSymbol(in), in)
	}
	assert.True(t, IsBinance("binance:ethusdt"))
	assert.False(t, IsBinance("NASDAQ:TSLA"))
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		period string
		want   time.Time
	}{
		{"3y", time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)},
		{"6mo", time.Date(2023, 12, 15, 12, 0, 0, 0, time.UTC)},
		{"5d", time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)},
		{"2wk", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"ytd", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := PeriodStart(now, tt.period)
		require.NoError(t, err, tt.period)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.period, got)
	}

	for _, bad := range []string{"", "y", "0d", "3x", "-1y"} {
		_, err := PeriodStart(now, bad)
		assert.Error(t, err, bad)
	}
}

func TestSortBars(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 0, 1)
	bars := []models.Bar{
		{Time: t2, Close: 2},
		{Time: t1, Close: 1},
		{Time: t2, Close: 3},
	}
	got := sortBars(bars)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Close)
	assert.Equal(t, 3.0, got[1].Close, "later duplicate wins")
}

func TestFetchError(t *testing.T) {
	err := fmt.Errorf("cycle: %w", &FetchError{Symbol: "TSLA", Err: errors.New("timeout")})
	assert.ErrorIs(t, err, ErrFetchFailure)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "TSLA", fe.Symbol)
	assert.Contains(t, err.Error(), "timeout")
}

const yahooFixture = `{"chart":{"result":[{"meta":{"symbol":"005930.KS"},
"timestamp":[1717372800,1717459200,1717545600],
"indicators":{"quote":[{
"open":[75000,null,76000],
"high":[76000,null,77500],
"low":[74000,null,75500],
"close":[75500,null,77000],
"volume":[1000,null,1200]}]}}],"error":null}}`

func TestYahooFetcher(t *testing.T) {
	var gotPath, gotRange, gotInterval, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		gotInterval = r.URL.Query().Get("interval")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, yahooFixture)
	}))
	defer srv.Close()

	f := NewYahooFetcher(srv.URL+"/v8/finance/chart/", 5*time.Second)
	bars, err := f.FetchBars(context.Background(), "KRX:005930", "3y", "1d")
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/005930.KS", gotPath)
	assert.Equal(t, "3y", gotRange)
	assert.Equal(t, "1d", gotInterval)
	assert.NotEmpty(t, gotUA)

	require.Len(t, bars, 2, "row with null prices is dropped")
	assert.Equal(t, time.Unix(1717372800, 0).UTC(), bars[0].Time)
	assert.Equal(t, 76000.0, bars[0].High)
	assert.Equal(t, 77000.0, bars[1].Close)
	assert.Equal(t, 1200.0, bars[1].Volume)
}

func TestYahooFetcher_NoData(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`},
		{"chart error", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Bad Request","description":"delisted"}}}`},
		{"empty result", http.StatusOK, `{"chart":{"result":[],"error":null}}`},
		{"all null", http.StatusOK, `{"chart":{"result":[{"timestamp":[1],"indicators":{"quote":[{"open":[null],"high":[null],"low":[null],"close":[null],"volume":[null]}]}}],"error":null}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewYahooFetcher(srv.URL+"/", time.Second).FetchBars(context.Background(), "ZZZZ", "1y", "1d")
			assert.ErrorIs(t, err, ErrNoData)
			assert.NotErrorIs(t, err, ErrFetchFailure)
		})
	}
}

func TestYahooFetcher_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewYahooFetcher(srv.URL+"/", time.Second).FetchBars(context.Background(), "TSLA", "1y", "1d")
	assert.ErrorIs(t, err, ErrFetchFailure)

	_, err = NewYahooFetcher(srv.URL+"/", time.Second).FetchBars(context.Background(), "TSLA", "1y", "1d")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "TSLA", fe.Symbol)
}

func TestBinanceFetcher(t *testing.T) {
	var gotSymbol, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		gotSymbol = r.URL.Query().Get("symbol")
		gotInterval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
[1717459200000,"69000.10","71000.00","68500.00","70500.25","1234.5",1718063999999,"0",10,"0","0","0"],
[1716854400000,"67000.00","69500.00","66000.00","69000.10","2345.6",1717459199999,"0",10,"0","0","0"]
]`)
	}))
	defer srv.Close()

	f := NewBinanceFetcher(srv.URL, 5*time.Second)
	bars, err := f.FetchBars(context.Background(), "BINANCE:btcusdt", "3mo", "1wk")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Equal(t, "1w", gotInterval)
	require.Len(t, bars, 2)
	assert.Equal(t, time.UnixMilli(1716854400000).UTC(), bars[0].Time, "bars are sorted ascending")
	assert.Equal(t, 69000.10, bars[0].Close)
	assert.Equal(t, 71000.0, bars[1].High)
	assert.Equal(t, 70500.25, bars[1].Close)
}

func TestBinanceFetcher_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	_, err := NewBinanceFetcher(srv.URL, time.Second).FetchBars(context.Background(), "BINANCE:XYZUSDT", "1y", "1d")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestBinanceFetcher_BadPeriod(t *testing.T) {
	_, err := NewBinanceFetcher("http://127.0.0.1:0", time.Second).FetchBars(context.Background(), "BINANCE:BTCUSDT", "forever", "1d")
	assert.ErrorIs(t, err, ErrFetchFailure)
}

func TestBinanceInterval(t *testing.T) {
	assert.Equal(t, "1w", binanceInterval("1wk"))
	assert.Equal(t, "1M", binanceInterval("1mo"))
	assert.Equal(t, "1d", binanceInterval("1d"))
}

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (c *countingFetcher) FetchBars(ctx context.Context, symbol, period, interval string) ([]models.Bar, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []models.Bar{{Time: time.Unix(0, 0), Close: 1, Open: 1, High: 1, Low: 1}}, nil
}

func TestRouter(t *testing.T) {
	equity := &countingFetcher{}
	crypto := &countingFetcher{}
	r := &Router{Equity: equity, Crypto: crypto}

	_, err := r.FetchBars(context.Background(), "BINANCE:BTCUSDT", "1y", "1d")
	require.NoError(t, err)
	_, err = r.FetchBars(context.Background(), "NASDAQ:TSLA", "1y", "1d")
	require.NoError(t, err)

	assert.EqualValues(t, 1, crypto.calls.Load())
	assert.EqualValues(t, 1, equity.calls.Load())
}

func TestCachedFetcher(t *testing.T) {
	next := &countingFetcher{}
	cache := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	f := NewCachedFetcher(next, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := f.FetchBars(ctx, "TSLA", "1y", "1d")
	require.NoError(t, err)
	_, err = f.FetchBars(ctx, "TSLA", "1y", "1d")
	require.NoError(t, err)
	assert.EqualValues(t, 1, next.calls.Load(), "second call served from cache")

	_, err = f.FetchBars(ctx, "TSLA", "1y", "1wk")
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.calls.Load(), "interval is part of the key")

	now = now.Add(2 * time.Minute)
	_, err = f.FetchBars(ctx, "TSLA", "1y", "1d")
	require.NoError(t, err)
	assert.EqualValues(t, 3, next.calls.Load(), "expired entries are refetched")
}

func TestCachedFetcher_ErrorsNotCached(t *testing.T) {
	next := &countingFetcher{err: ErrNoData}
	f := NewCachedFetcher(next, NewMemoryCache(), time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := f.FetchBars(context.Background(), "TSLA", "1y", "1d")
		assert.ErrorIs(t, err, ErrNoData)
	}
	assert.EqualValues(t, 2, next.calls.Load())
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]models.Bar, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, []models.Bar, time.Duration) error {
	return errors.New("connection refused")
}

func TestCachedFetcher_CacheFailureFallsThrough(t *testing.T) {
	next := &countingFetcher{}
	f := NewCachedFetcher(next, brokenCache{}, time.Minute, zap.NewNop())

	bars, err := f.FetchBars(context.Background(), "TSLA", "1y", "1d")
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []models.Bar{{Close: 1}}, time.Minute))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	got[0].Close = 99

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, 1.0, again[0].Close)
}
