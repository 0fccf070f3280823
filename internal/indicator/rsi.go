package indicator

// RSI computes the Relative Strength Index using Wilder's smoothing method.
//
// The first value appears at index period: the average gain and loss are seeded with the
// simple mean of the first period price changes, then smoothed as
// avg = (prevAvg*(period-1) + current) / period. When the average loss is zero the RSI is
// 100 (this includes a perfectly flat series). Indices before period are nil.
func RSI(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if period < 1 || len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	p := float64(period)
	for i := 1; i < len(closes); i++ {
		gain, loss := 0.0, 0.0
		if delta := closes[i] - closes[i-1]; delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}

		if i <= period {
			// Accumulation phase: build the SMA seed
			avgGain += gain
			avgLoss += loss
			if i < period {
				continue
			}
			avgGain /= p
			avgLoss /= p
		} else {
			avgGain = (avgGain*(p-1) + gain) / p
			avgLoss = (avgLoss*(p-1) + loss) / p
		}

		v := rsiValue(avgGain, avgLoss)
		out[i] = &v
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
