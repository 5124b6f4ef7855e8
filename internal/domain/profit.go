package domain

// ProfitRatio returns the gross relative profit of moving from openRate to
// closeRate, scaled by leverage. Fees are not included.
//
//	long:  (closeRate/openRate - 1) * leverage
//	short: (1 - closeRate/openRate) * leverage
func ProfitRatio(openRate, closeRate, leverage float64, isShort bool) float64 {
	if openRate == 0 {
		return 0
	}
	if leverage < 1 {
		leverage = 1
	}
	if isShort {
		return (1 - closeRate/openRate) * leverage
	}
	return (closeRate/openRate - 1) * leverage
}

// LegProfit returns the absolute profit, before fees, of reducing a position
// opened at openRate by amount at price.
func LegProfit(openRate, price, amount float64, isShort bool) float64 {
	diff := price - openRate
	if isShort {
		diff = -diff
	}
	return diff * amount
}

// StakeFor returns the stake required to hold amount at rate with leverage.
func StakeFor(rate, amount, leverage float64) float64 {
	if leverage < 1 {
		leverage = 1
	}
	return rate * amount / leverage
}
