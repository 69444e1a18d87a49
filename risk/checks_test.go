package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func codes(d Decision) []string {
	out := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		out = append(out, v.Code)
	}
	return out
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	policy := Policy{MinRR: 2, MaxRiskPct: 0.05, MaxOpenPositions: 2}

	tests := []struct {
		name    string
		in      Intent
		acct    AccountSnapshot
		allowed bool
		want    []string
	}{
		{
			name:    "ok",
			in:      Intent{Entry: 100, Stop: 90, Target: 120, Quantity: 425},
			acct:    AccountSnapshot{Capital: 100000},
			allowed: true,
			want:    []string{},
		},
		{
			name: "missing-stop",
			in:   Intent{Entry: 100, Target: 120, Quantity: 1},
			acct: AccountSnapshot{Capital: 100000},
			want: []string{"NO_STOP_OR_ENTRY"},
		},
		{
			name: "no-quantity",
			in:   Intent{Entry: 100, Stop: 90, Target: 120},
			acct: AccountSnapshot{Capital: 100000},
			want: []string{"NO_QUANTITY"},
		},
		{
			name: "risk-and-rr",
			in:   Intent{Entry: 100, Stop: 90, Target: 110, Quantity: 1000},
			acct: AccountSnapshot{Capital: 100000},
			want: []string{"RISK_TOO_HIGH", "RR_TOO_LOW"},
		},
		{
			name: "too-many-open",
			in:   Intent{Entry: 100, Stop: 90, Target: 130, Quantity: 10},
			acct: AccountSnapshot{Capital: 100000, OpenPositions: 2},
			want: []string{"TOO_MANY_OPEN_POSITIONS"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Evaluate(policy, tt.in, tt.acct)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.want, codes(d))
		})
	}
}

func TestRR(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, RR(100, 90, 120), 1e-9)
	assert.InDelta(t, 2.0, RR(100, 110, 80), 1e-9)
	assert.Zero(t, RR(100, 100, 120))
	assert.InDelta(t, 4250.0, PlannedRisk(425, 100, 90), 1e-9)
}
