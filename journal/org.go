package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/optiontrader/broker"
)

// FormatTradeOrg renders a trade as an Org-mode entry. Facts go in the
// PROPERTIES drawer; the Thesis and Review headings are left for notes.
func FormatTradeOrg(t broker.ClosedTrade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s x%d (%s)\n", t.Side, t.Symbol, t.Quantity, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":MODE: %s\n", t.Mode)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":QUANTITY: %d\n", t.Quantity)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.2f\n", t.EntryPrice)
	fmt.Fprintf(&b, ":EXIT_PRICE: %.2f\n", t.ExitPrice)
	fmt.Fprintf(&b, ":OPENED_AT: %s\n", t.OpenedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, ":CLOSED_AT: %s\n", t.ClosedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, ":NET_PNL: %.2f\n", t.NetPnL)
	fmt.Fprintf(&b, ":CHARGES: %.2f\n", t.Charges.Total)
	fmt.Fprintf(&b, ":EXIT_REASON: %s\n", t.ExitReason)
	if t.Tag != "" {
		fmt.Fprintf(&b, ":TAG: %s\n", t.Tag)
	}
	b.WriteString(":END:\n\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Review\n- \n")
	return b.String()
}

func FormatTradesOrg(trades []broker.ClosedTrade) string {
	parts := make([]string, len(trades))
	for i, t := range trades {
		parts[i] = FormatTradeOrg(t)
	}
	return strings.Join(parts, "\n\n")
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
