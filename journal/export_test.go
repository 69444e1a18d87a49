package journal

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rustyeddy/optiontrader/analytics"
	"github.com/rustyeddy/optiontrader/broker"
)

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	tr := trade("01JABCDEFGHJKMNPQRST", time.Hour, 2197.5)
	tr.Tag = "rsi"
	out := FormatTradeOrg(tr)

	assert.True(t, strings.HasPrefix(out, "** BUY NIFTY 22000 CE x75 (01JABCDE)\n"))
	assert.Contains(t, out, ":TRADE_ID: 01JABCDEFGHJKMNPQRST\n")
	assert.Contains(t, out, ":NET_PNL: 2197.50\n")
	assert.Contains(t, out, ":TAG: rsi\n")
	assert.Contains(t, out, "*** Review")

	both := FormatTradesOrg([]broker.ClosedTrade{trade("A", time.Hour, 1), trade("B", time.Hour, 2)})
	assert.Equal(t, 2, strings.Count(both, ":PROPERTIES:"))
	assert.Empty(t, FormatTradesOrg(nil))
}

func TestExportExcel(t *testing.T) {
	t.Parallel()

	curve := []analytics.EquityPoint{
		{Time: opened, Equity: 100000},
		{Time: opened.Add(time.Hour), Equity: 102197.5},
	}
	trades := []broker.ClosedTrade{trade("T1", time.Hour, 2197.5)}
	report := analytics.Compute(curve, trades, 100000)

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, ExportExcel(path, report, trades))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetTrades, sheetEquity, sheetSummary}, f.GetSheetList())

	v, err := f.GetCellValue(sheetTrades, "A2")
	require.NoError(t, err)
	assert.Equal(t, "T1", v)

	v, err = f.GetCellValue(sheetSummary, "A5")
	require.NoError(t, err)
	assert.Equal(t, "Total Trades", v)
	v, err = f.GetCellValue(sheetSummary, "B5")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	rows, err := f.GetRows(sheetEquity)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
