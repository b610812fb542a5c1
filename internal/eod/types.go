package eod

// summaryRow is one instrument's trading for the day. Money is written as
// fixed-point strings so the report matches the ledger exactly.
type summaryRow struct {
	Instrument     string `csv:"instrument"`
	BuyQty         int64  `csv:"buy_qty"`
	BuyAvg         string `csv:"buy_avg"`
	SellQty        int64  `csv:"sell_qty"`
	SellAvg        string `csv:"sell_avg"`
	Fees           string `csv:"fees"`
	RealizedPnL    string `csv:"realized_pnl"`
	GrossBuyValue  string `csv:"gross_buy_value"`
	GrossSellValue string `csv:"gross_sell_value"`
}

type holdingRow struct {
	Instrument  string `csv:"instrument"`
	Quantity    int64  `csv:"quantity"`
	AverageCost string `csv:"average_cost"`
	Close       string `csv:"close"`
	Value       string `csv:"value"`
	Weight      string `csv:"weight"`
}
