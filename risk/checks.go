package risk

import "fmt"

// Policy holds the pre-trade limits that sit on top of the Manager's
// kill switch and reward:risk floor.
type Policy struct {
	MinRR            float64 `json:"min_rr" yaml:"min_rr"`
	MaxRiskPct       float64 `json:"max_risk_pct" yaml:"max_risk_pct"`
	MaxOpenPositions int     `json:"max_open_positions" yaml:"max_open_positions"`
}

// Intent is a sized trade about to be placed.
type Intent struct {
	Entry    float64
	Stop     float64
	Target   float64
	Quantity int
}

// AccountSnapshot is the account as the policy sees it.
type AccountSnapshot struct {
	Capital       float64
	OpenPositions int
}

type Violation struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Decision is the policy report. Allowed is false if any violation fired.
type Decision struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations,omitempty"`

	PlannedRisk    float64 `json:"planned_risk"`
	PlannedRiskPct float64 `json:"planned_risk_pct"`
	PlannedRR      float64 `json:"planned_rr"`
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Evaluate checks a sized intent against p.
func Evaluate(p Policy, in Intent, acct AccountSnapshot) Decision {
	d := Decision{Allowed: true}

	if in.Entry <= 0 || in.Stop <= 0 {
		d.add("NO_STOP_OR_ENTRY", "entry/stop must be set")
		return d
	}
	if in.Quantity <= 0 {
		d.add("NO_QUANTITY", "quantity must be positive")
		return d
	}

	d.PlannedRisk = PlannedRisk(in.Quantity, in.Entry, in.Stop)
	d.PlannedRiskPct = RiskPct(d.PlannedRisk, acct.Capital)
	d.PlannedRR = RR(in.Entry, in.Stop, in.Target)

	if p.MaxRiskPct > 0 && d.PlannedRiskPct > p.MaxRiskPct {
		d.add("RISK_TOO_HIGH",
			fmt.Sprintf("planned risk %.2f%% exceeds max %.2f%%", 100*d.PlannedRiskPct, 100*p.MaxRiskPct))
	}
	if d.PlannedRR < p.MinRR {
		d.add("RR_TOO_LOW", fmt.Sprintf("RR %.2f below minimum %.2f", d.PlannedRR, p.MinRR))
	}
	if p.MaxOpenPositions > 0 && acct.OpenPositions >= p.MaxOpenPositions {
		d.add("TOO_MANY_OPEN_POSITIONS",
			fmt.Sprintf("open positions %d >= max %d", acct.OpenPositions, p.MaxOpenPositions))
	}
	return d
}
