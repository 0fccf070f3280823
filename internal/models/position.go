package models

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"

	"github.com/jxskiss/base62"
)

// DateLayout 是持仓记录中日期字段的格式
const DateLayout = "2006-01-02"

// Position 是一条被跟踪的手动交易记录。
// 生命周期: Open -> Partial (TookHalf) -> Closed, Closed 之后任何字段都不再变化。
type Position struct {
	Symbol     string   `json:"symbol"`
	EntryDate  string   `json:"entry_date"`  // 入场日期 (创建后不可变)
	EntryPrice float64  `json:"entry_price"` // 入场价 (创建后不可变)
	Quantity   *float64 `json:"quantity,omitempty"`
	RunHigh    float64  `json:"run_high"`  // 入场后的最高收盘价, 只增不减
	TookHalf   bool     `json:"took_half"` // 是否已经止盈一半
	Closed     bool     `json:"closed"`
	CloseDate  *string  `json:"close_date"`
	ClosePrice *float64 `json:"close_price"`
	Round      int      `json:"round"` // 策略轮次
}

// PositionKey 是持仓记录的唯一键 (symbol, round, entry_date)
type PositionKey struct {
	Symbol    string
	Round     int
	EntryDate string
}

// Key 返回记录的唯一键
func (p Position) Key() PositionKey {
	return PositionKey{Symbol: p.Symbol, Round: p.Round, EntryDate: p.EntryDate}
}

// ID 返回记录ID
func (p Position) ID() string {
	return p.Key().ID()
}

// ID derives a stable record id from the uniqueness key, so a superseding write keeps the id.
func (k PositionKey) ID() string {
	h := fnv.New64a()
	h.Write([]byte(k.Symbol))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(k.Round)))
	h.Write([]byte{0})
	h.Write([]byte(k.EntryDate))
	return base62.EncodeToString(h.Sum(nil))
}

// IsOpen 是否仍在跟踪中
func (p Position) IsOpen() bool {
	return !p.Closed
}

// Clone 返回深拷贝, 避免调用方修改存储中的指针字段
func (p Position) Clone() Position {
	c := p
	if p.Quantity != nil {
		q := *p.Quantity
		c.Quantity = &q
	}
	if p.CloseDate != nil {
		d := *p.CloseDate
		c.CloseDate = &d
	}
	if p.ClosePrice != nil {
		cp := *p.ClosePrice
		c.ClosePrice = &cp
	}
	return c
}

// Validate 检查记录的不变量
func (p Position) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("position: empty symbol")
	}
	if !(p.EntryPrice > 0) {
		return fmt.Errorf("position %s: entry_price %v must be > 0", p.Symbol, p.EntryPrice)
	}
	if math.IsNaN(p.RunHigh) || p.RunHigh < p.EntryPrice {
		return fmt.Errorf("position %s: run_high %v below entry_price %v", p.Symbol, p.RunHigh, p.EntryPrice)
	}
	if p.Round < 1 {
		return fmt.Errorf("position %s: round %d must be >= 1", p.Symbol, p.Round)
	}
	if p.Closed && (p.ClosePrice == nil || p.CloseDate == nil) {
		return fmt.Errorf("position %s: closed without close_price/close_date", p.Symbol)
	}
	if !p.Closed && p.ClosePrice != nil {
		return fmt.Errorf("position %s: open with close_price set", p.Symbol)
	}
	return nil
}
