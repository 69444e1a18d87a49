package risk

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/rustyeddy/optiontrader/logger"
)

// DefaultHardCapPct is the per-trade ceiling handed to the sizer.
const DefaultHardCapPct = 0.05

// Config seeds a Manager.
type Config struct {
	TotalCapital    float64 `json:"total_capital" yaml:"total_capital"`
	MaxDailyLossPct float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"` // 0.05
	MinRewardRisk   float64 `json:"min_reward_risk" yaml:"min_reward_risk"`       // 2.0
	HardCapPct      float64 `json:"hard_cap_pct" yaml:"hard_cap_pct"`             // 0.05
}

func DefaultConfig() Config {
	return Config{
		TotalCapital:    100000,
		MaxDailyLossPct: 0.05,
		MinRewardRisk:   2.0,
		HardCapPct:      DefaultHardCapPct,
	}
}

// Validation is the verdict on a proposed setup.
type Validation struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// State is a point-in-time copy of the manager.
type State struct {
	TotalCapital      float64 `json:"total_capital"`
	CurrentCapital    float64 `json:"current_capital"`
	DailyPnL          float64 `json:"daily_pnl"`
	MaxDailyLossLimit float64 `json:"max_daily_loss_limit"`
	MinRewardRisk     float64 `json:"min_reward_risk"`
	KillSwitchActive  bool    `json:"kill_switch_active"`
	Sizer             string  `json:"sizer"`
}

// Manager is the gatekeeper: kill switch, reward:risk floor and delegated
// sizing. Current capital moves only through UpdatePnL.
type Manager struct {
	mu sync.Mutex

	totalCapital      float64
	currentCapital    float64
	maxDailyLossLimit float64 // negative
	minRewardRisk     float64
	hardCapPct        float64

	dailyPnL   float64
	killSwitch bool

	sizer Sizer
	log   *slog.Logger
}

// NewManager builds a manager. A nil sizer means quarter Kelly with the
// classic 45% / 2.0 assumptions and a lot of 25.
func NewManager(cfg Config, sizer Sizer, log *slog.Logger) *Manager {
	if cfg.MinRewardRisk <= 0 {
		cfg.MinRewardRisk = 2.0
	}
	if cfg.HardCapPct <= 0 {
		cfg.HardCapPct = DefaultHardCapPct
	}
	if sizer == nil {
		sizer = NewKelly(0.45, 2.0, 25)
	}
	m := &Manager{
		totalCapital:      cfg.TotalCapital,
		currentCapital:    cfg.TotalCapital,
		maxDailyLossLimit: -(cfg.TotalCapital * cfg.MaxDailyLossPct),
		minRewardRisk:     cfg.MinRewardRisk,
		hardCapPct:        cfg.HardCapPct,
		sizer:             sizer,
		log:               logger.Or(log, "risk"),
	}
	m.log.Info("risk manager initialised",
		"capital", cfg.TotalCapital,
		"max_daily_loss", m.maxDailyLossLimit,
		"min_rr", m.minRewardRisk,
		"sizer", sizer.Name())
	return m
}

// CheckKillSwitch reports whether trading is halted. It trips when daily
// P&L reaches the loss limit and stays tripped until Reset.
func (m *Manager) CheckKillSwitch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkLocked()
}

func (m *Manager) checkLocked() bool {
	if m.dailyPnL <= m.maxDailyLossLimit && !m.killSwitch {
		m.log.Error("KILL SWITCH TRIGGERED",
			"daily_pnl", m.dailyPnL, "limit", m.maxDailyLossLimit)
		m.killSwitch = true
	}
	return m.killSwitch
}

// ValidateTradeSetup rejects setups while halted, with zero stop distance,
// or with reward:risk below the floor.
func (m *Manager) ValidateTradeSetup(entry, stop, target float64) Validation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.checkLocked() {
		return Validation{Approved: false, Reason: "Kill Switch Active"}
	}
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return Validation{Approved: false, Reason: "Invalid Risk (Stop Loss == Entry)"}
	}
	rr := math.Abs(target-entry) / risk
	if rr < m.minRewardRisk {
		msg := fmt.Sprintf("R:R %.2f is below minimum %.2f", rr, m.minRewardRisk)
		m.log.Warn("trade rejected", "reason", msg)
		return Validation{Approved: false, Reason: msg}
	}
	return Validation{Approved: true, Reason: "Approved"}
}

// TargetSize returns the quantity for a setup, or 0 while halted.
func (m *Manager) TargetSize(entry, stop float64) int {
	return m.TargetSizeWith(entry, stop, Params{})
}

func (m *Manager) TargetSizeWith(entry, stop float64, p Params) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.checkLocked() {
		return 0
	}
	qty := m.sizer.Size(m.currentCapital, entry, stop, m.hardCapPct, p)
	m.log.Debug("sized", "entry", entry, "stop", stop, "qty", qty, "capital", m.currentCapital)
	return qty
}

// UpdatePnL books realized P&L into the day and into capital.
func (m *Manager) UpdatePnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL += pnl
	m.currentCapital += pnl
	m.checkLocked()
}

// RestoreState rehydrates from the ledger. Capital is total + daily P&L;
// premium locked in resumed positions is the caller's concern.
func (m *Manager) RestoreState(dailyPnL float64, killSwitch bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = dailyPnL
	m.currentCapital = m.totalCapital + dailyPnL
	m.killSwitch = killSwitch
	m.log.Info("risk manager restored", "daily_pnl", dailyPnL, "kill_switch", killSwitch)
}

// Reset starts a new day: zero P&L, capital back to total, switch cleared.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = 0
	m.currentCapital = m.totalCapital
	m.killSwitch = false
	m.log.Info("risk manager reset")
}

func (m *Manager) CurrentCapital() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentCapital
}

func (m *Manager) MinRewardRisk() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minRewardRisk
}

// HardCapPct is the per-trade risk ceiling as a fraction of capital.
func (m *Manager) HardCapPct() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hardCapPct
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		TotalCapital:      m.totalCapital,
		CurrentCapital:    m.currentCapital,
		DailyPnL:          m.dailyPnL,
		MaxDailyLossLimit: m.maxDailyLossLimit,
		MinRewardRisk:     m.minRewardRisk,
		KillSwitchActive:  m.killSwitch,
		Sizer:             m.sizer.Name(),
	}
}

// AvailableCapital is current capital less premium locked in open
// positions.
func (m *Manager) AvailableCapital(locked float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentCapital - locked
}
