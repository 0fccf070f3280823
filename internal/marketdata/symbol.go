package marketdata

import "strings"

const binancePrefix = "BINANCE:"

// NormalizeSymbol maps a display ticker to the data source's spelling.
// "KRX:005930" becomes "005930.KS", "NASDAQ:TSLA" becomes "TSLA", bare symbols are unchanged.
func NormalizeSymbol(raw string) string {
	raw = strings.TrimSpace(raw)
	if code, ok := strings.CutPrefix(raw, "KRX:"); ok {
		return code + ".KS"
	}
	if i := strings.Index(raw, ":"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}

// IsBinance reports whether the ticker is routed to Binance.
func IsBinance(raw string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(raw)), binancePrefix)
}
