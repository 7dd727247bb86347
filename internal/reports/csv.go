package reports

import (
	"encoding/csv"
	"io"
)

const pendingPayout = "Pending"

// CSVHeader is the fixed column order of the transaction export.
var CSVHeader = []string{
	"Order Number",
	"Date",
	"Gross Amount",
	"Platform Fee",
	"Nonprofit Donation",
	"Net Payout",
	"Status",
	"Payout ID",
}

// WriteTransactionsCSV renders rows with amounts fixed to two decimals. Rows
// not yet claimed by a payout show Pending in the payout column.
func WriteTransactionsCSV(w io.Writer, rows []TransactionRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, row := range rows {
		payout := pendingPayout
		if row.PayoutID != nil {
			payout = row.PayoutID.String()
		}
		if err := cw.Write([]string{
			row.OrderNumber,
			row.CreatedAt.UTC().Format("2006-01-02"),
			row.Amount.StringFixed(2),
			row.PlatformFee.StringFixed(2),
			row.NonprofitDonation.StringFixed(2),
			row.SellerPayout.StringFixed(2),
			string(row.Status),
			payout,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
