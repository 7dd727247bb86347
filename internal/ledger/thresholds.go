package ledger

import "github.com/shopspring/decimal"

// 1099-K reporting kicks in once either threshold is reached within a tax year.
var (
	ReportingGrossThreshold = decimal.NewFromInt(20000)
	ReportingCountThreshold = 200
)

// ReportingRequired reports whether the aggregate crossed a threshold.
func ReportingRequired(gross decimal.Decimal, count int) bool {
	return gross.GreaterThanOrEqual(ReportingGrossThreshold) || count >= ReportingCountThreshold
}
