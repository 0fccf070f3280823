package models

import "time"

// Bar 一根 OHLCV K线
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Snapshot 是某根K线对应的指标值。
// DrawdownPct 与 RSI 在无法计算时为 nil。
type Snapshot struct {
	Time        time.Time `json:"time"`
	Close       float64   `json:"close"`
	RecentHigh  float64   `json:"recent_high"`
	DrawdownPct *float64  `json:"drawdown_pct"`
	RSI         *float64  `json:"rsi"`
}

// WatchItem 关注列表中的一行
type WatchItem struct {
	Ticker   string   `json:"ticker"`
	Name     string   `json:"name"`
	Market   string   `json:"market,omitempty"`
	Icon     string   `json:"icon,omitempty"`
	Quantity *float64 `json:"quantity,omitempty"`
	Ratio    *float64 `json:"ratio,omitempty"`
}

// 状态标签
const (
	LabelEntry    = "ENTRY"
	LabelTakeHalf = "TP½"
	LabelTrail    = "TRAIL"
	LabelNone     = "-"
	LabelNoData   = "NO DATA"
)

// StatusRow 每个周期输出给界面的一行
type StatusRow struct {
	Ticker      string   `json:"ticker"`
	Name        string   `json:"name"`
	DrawdownPct *float64 `json:"dd_pct"`
	RSI         *float64 `json:"rsi"`
	Close       float64  `json:"close"`
	Entry       bool     `json:"entry"`
	TPBand      string   `json:"tp_band"`
	TPHit       bool     `json:"tp_hit"`
	TrailHit    bool     `json:"trail_hit"`
	Status      string   `json:"status"`
	Reason      string   `json:"reason,omitempty"` // NO DATA 的原因
}

// Fired 返回该行是否有任何信号
func (r StatusRow) Fired() bool {
	return r.Entry || r.TPHit || r.TrailHit
}
