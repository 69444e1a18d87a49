package market

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var optionSymbolRE = regexp.MustCompile(`^([A-Z]+?)(?:\d{2}[A-Z]{3})?(\d+)(CE|PE)$`)

// ParseOptionSymbol understands "NIFTY26350PE" and "NIFTY 26350 PE". It
// returns the underlying name, strike and option type.
func ParseOptionSymbol(symbol string) (underlying string, strike float64, typ OptionType, ok bool) {
	clean := strings.ToUpper(strings.ReplaceAll(symbol, " ", ""))
	m := optionSymbolRE.FindStringSubmatch(clean)
	if m == nil {
		return "", 0, "", false
	}
	k, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return "", 0, "", false
	}
	return m[1], k, OptionType(m[3]), true
}

// OptionSymbol formats the symbol we use for synthetic legs, e.g.
// "NIFTY 22000 CE".
func OptionSymbol(underlying string, strike float64, typ OptionType) string {
	return fmt.Sprintf("%s %s %s", strings.ToUpper(underlying), strconv.FormatFloat(strike, 'f', -1, 64), typ)
}
