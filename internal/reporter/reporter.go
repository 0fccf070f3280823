package reporter

import (
	"fmt"
	"io"

	"watchdash/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
)

// Metrics 汇总已记录持仓的表现
type Metrics struct {
	TotalPositions int
	OpenPositions  int
	PartialExits   int // 已止盈一半但仍在跟踪
	ClosedTrades   int
	WinningTrades  int
	LosingTrades   int
	WinRate        float64
	AvgReturnPct   float64 // 已清仓交易的平均收益率
	BestReturnPct  float64
	WorstReturnPct float64
}

// RenderStatus 把一个周期的状态行渲染为表格
func RenderStatus(w io.Writer, rows []models.StatusRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Ticker", "Name", "DD%", "RSI", "Close", "Entry", "TP Band", "TP½", "Trail", "Status"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.Ticker,
			r.Name,
			formatOptional(r.DrawdownPct, 2),
			formatOptional(r.RSI, 1),
			formatPrice(r.Close, r.Status),
			flag(r.Entry),
			r.TPBand,
			flag(r.TPHit),
			flag(r.TrailHit),
			r.Status,
		})
	}
	t.Render()
}

// RenderSeries 渲染单个标的的指标序列 (详情视图)
func RenderSeries(w io.Writer, symbol string, series []models.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(symbol)
	t.AppendHeader(table.Row{"Date", "Close", "Recent High", "DD%", "RSI"})
	for _, s := range series {
		t.AppendRow(table.Row{
			s.Time.Format(models.DateLayout),
			round(s.Close, 2),
			round(s.RecentHigh, 2),
			formatOptional(s.DrawdownPct, 2),
			formatOptional(s.RSI, 1),
		})
	}
	t.Render()
}

// RenderPositions 渲染持仓记录以及汇总指标
func RenderPositions(w io.Writer, positions []models.Position) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Symbol", "Round", "Entry Date", "Entry", "Qty", "Run High", "Half", "Closed", "Close Date", "Close", "Return%"})
	for _, p := range positions {
		closeDate, closePrice, ret := "", "", ""
		if p.CloseDate != nil {
			closeDate = *p.CloseDate
		}
		if p.ClosePrice != nil {
			closePrice = round(*p.ClosePrice, 2)
			ret = round(returnPct(p.EntryPrice, *p.ClosePrice), 2)
		}
		t.AppendRow(table.Row{
			p.Symbol,
			p.Round,
			p.EntryDate,
			round(p.EntryPrice, 2),
			formatOptional(p.Quantity, 4),
			round(p.RunHigh, 2),
			flag(p.TookHalf),
			flag(p.Closed),
			closeDate,
			closePrice,
			ret,
		})
	}

	m := CalculateMetrics(positions)
	t.AppendFooter(table.Row{
		fmt.Sprintf("open %d", m.OpenPositions),
		"", "", "", "", "",
		fmt.Sprintf("%d", m.PartialExits),
		fmt.Sprintf("%d", m.ClosedTrades),
		fmt.Sprintf("win %s%%", round(m.WinRate, 1)),
		"avg",
		round(m.AvgReturnPct, 2),
	})
	t.Render()
}

// CalculateMetrics 根据持仓记录计算胜率与平均收益
func CalculateMetrics(positions []models.Position) *Metrics {
	m := &Metrics{TotalPositions: len(positions)}

	var total float64
	for _, p := range positions {
		if !p.Closed || p.ClosePrice == nil {
			m.OpenPositions++
			if p.TookHalf {
				m.PartialExits++
			}
			continue
		}
		r := returnPct(p.EntryPrice, *p.ClosePrice)
		if m.ClosedTrades == 0 || r > m.BestReturnPct {
			m.BestReturnPct = r
		}
		if m.ClosedTrades == 0 || r < m.WorstReturnPct {
			m.WorstReturnPct = r
		}
		m.ClosedTrades++
		total += r
		if r > 0 {
			m.WinningTrades++
		} else {
			m.LosingTrades++
		}
	}

	if m.ClosedTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.ClosedTrades) * 100
		m.AvgReturnPct = total / float64(m.ClosedTrades)
	}
	return m
}

func returnPct(entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (exit - entry) / entry * 100
}

// round 使用十进制舍入, 避免 0.125 之类的值显示成 0.12
func round(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

func formatOptional(v *float64, places int32) string {
	if v == nil {
		return "-"
	}
	return round(*v, places)
}

func formatPrice(v float64, status string) string {
	if status == models.LabelNoData {
		return "-"
	}
	return round(v, 2)
}

func flag(b bool) string {
	if b {
		return "✔"
	}
	return ""
}
