package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"watchdash/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// 币安单次请求最多1000条
const binancePageLimit = 1000

// BinanceFetcher 从币安公共K线接口拉取数据, 处理 "BINANCE:BTCUSDT" 形式的标的
type BinanceFetcher struct {
	client    *binance.Client
	pageDelay time.Duration
	now       func() time.Time
}

// NewBinanceFetcher 创建一个新的币安K线拉取器, baseURL 为空时使用正式接口
func NewBinanceFetcher(baseURL string, timeout time.Duration) *BinanceFetcher {
	client := binance.NewClient("", "") // 公共接口不需要API Key
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceFetcher{
		client:    client,
		pageDelay: 200 * time.Millisecond,
		now:       time.Now,
	}
}

// binanceInterval 把 Yahoo 的周期写法转换为币安的写法
func binanceInterval(interval string) string {
	switch interval {
	case "1wk":
		return "1w"
	case "1mo":
		return "1M"
	case "60m":
		return "1h"
	case "90m":
		return "1h"
	}
	return interval
}

func (b *BinanceFetcher) FetchBars(ctx context.Context, symbol, period, interval string) ([]models.Bar, error) {
	pair := strings.ToUpper(NormalizeSymbol(symbol))
	now := b.now()
	start, err := PeriodStart(now, period)
	if err != nil {
		return nil, &FetchError{Symbol: symbol, Err: err}
	}

	var bars []models.Bar
	for t := start; t.Before(now); {
		klines, err := b.client.NewKlinesService().
			Symbol(pair).
			Interval(binanceInterval(interval)).
			StartTime(t.UnixMilli()).
			Limit(binancePageLimit).
			Do(ctx)
		if err != nil {
			return nil, &FetchError{Symbol: symbol, Err: fmt.Errorf("下载K线数据失败: %w", err)}
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			bar, err := klineToBar(k)
			if err != nil {
				return nil, &FetchError{Symbol: symbol, Err: err}
			}
			bars = append(bars, bar)
		}

		if len(klines) < binancePageLimit {
			break
		}
		// 更新下一次请求的开始时间
		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)

		// 避免过于频繁的请求
		select {
		case <-ctx.Done():
			return nil, &FetchError{Symbol: symbol, Err: ctx.Err()}
		case <-time.After(b.pageDelay):
		}
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, pair)
	}
	return sortBars(bars), nil
}

func klineToBar(k *binance.Kline) (models.Bar, error) {
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	var values [5]float64
	for i, s := range fields {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return models.Bar{}, fmt.Errorf("解析K线价格 %q 失败: %w", s, err)
		}
		values[i] = d.InexactFloat64()
	}
	return models.Bar{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
