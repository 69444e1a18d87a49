package market

// Strike selection policies.
const (
	ATM = "ATM"
	ITM = "ITM"
	OTM = "OTM"
)

// SelectStrike picks the strike to buy for typ at spot. ITM and OTM move
// offset strikes away from the money in the direction that makes sense for
// the option type.
func SelectStrike(spot, step float64, policy string, offset int, typ OptionType) float64 {
	atm := RoundStrike(spot, step)
	shift := float64(offset) * step
	switch policy {
	case ITM:
		if typ == Put {
			return atm + shift
		}
		return atm - shift
	case OTM:
		if typ == Put {
			return atm - shift
		}
		return atm + shift
	}
	return atm
}
