package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/optiontrader/backtest"
	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/market"
	"github.com/rustyeddy/optiontrader/risk"
	"github.com/rustyeddy/optiontrader/service"
	"github.com/rustyeddy/optiontrader/state"
)

const historyCSV = `datetime,open,high,low,close,volume,atm_strike,call_price,put_price
2025-01-06 09:15:00,22000,22000,22000,22000,100,22000,100,100
2025-01-06 09:16:00,22000,22000,22000,22000,100,22000,130,100
2025-01-06 09:17:00,22000,22000,22000,22000,100,22000,80,100
`

func newTestServer(t *testing.T) (*Server, *broker.Paper) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "NIFTY.csv"), []byte(historyCSV), 0o644))
	provider := market.NewCSVProvider(dir, nil)
	provider.Location = market.IST

	ledger := state.NewManager(state.NewMemoryStore(), logger.Discard())
	rm := risk.NewManager(risk.DefaultConfig(), nil, logger.Discard())
	paper := broker.NewPaper(ledger, rm, broker.WithSlippage(0), broker.WithLogger(logger.Discard()))
	svc, err := service.New(service.Deps{
		Risk: rm, Ledger: ledger, Broker: paper, Provider: provider, Book: provider.Book, Log: logger.Discard(),
	})
	require.NoError(t, err)

	srv, err := NewServer("", svc, logger.Discard())
	require.NoError(t, err)
	return srv, paper
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestRiskRoutes(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/risk", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st risk.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 100000.0, st.TotalCapital)

	w = do(t, srv, http.MethodGet, "/api/risk/validate?entry=100&sl=90&target=120", "")
	require.Equal(t, http.StatusOK, w.Code)
	var check service.TradeCheck
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.True(t, check.Approved)
	assert.Equal(t, 425, check.SuggestedQty)

	w = do(t, srv, http.MethodGet, "/api/risk/validate?entry=abc&sl=90&target=120", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPositionRoutes(t *testing.T) {
	t.Parallel()

	srv, paper := newTestServer(t)
	_, err := paper.PlaceOrder(t.Context(), broker.OrderRequest{
		Symbol: "NIFTY 22000 CE", Quantity: 75, Side: market.Buy, Price: 100,
	})
	require.NoError(t, err)

	w := do(t, srv, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Positions []service.PositionView `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Positions, 1)
	assert.Equal(t, "NIFTY 22000 CE", body.Positions[0].Symbol)

	w = do(t, srv, http.MethodPost, "/api/positions/NIFTY%2022000%20CE/close", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res broker.CloseResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, broker.StatusClosed, res.Status)

	w = do(t, srv, http.MethodPost, "/api/positions/NIFTY%2022000%20CE/close", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBacktestStream(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	body := `{"strategy_config":{"name":"timer","params":{"entry_every_sec":3600}},
		"risk_config":{"stop_loss_pct":10,"target_pct":20,"slippage_pct":0},
		"start_date":"2025-01-06","end_date":"2025-01-06","timeframe":"1m"}`
	w := do(t, srv, http.MethodPost, "/api/backtest", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	var events []backtest.Event
	sc := bufio.NewScanner(w.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var ev backtest.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	require.NotEmpty(t, events)
	assert.Equal(t, backtest.EventProgress, events[0].Type)
	last := events[len(events)-1]
	require.Equal(t, backtest.EventResult, last.Type)
	require.NotNil(t, last.Result)
	assert.Len(t, last.Result.Trades, 1)
}

func TestBacktestStreamError(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/api/backtest", `{"strategy_config":{"name":"moon"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 1)
	var ev backtest.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, backtest.EventError, ev.Type)
	assert.Contains(t, ev.Message, "moon")

	w = do(t, srv, http.MethodPost, "/api/backtest", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStateAndStrategyRoutes(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/strategies", `{"name":"rsi-reversal","symbol":"NIFTY","params":{"period":14}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, srv, http.MethodPost, "/api/strategies", `{"name":"moon"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	for _, key := range []string{"daily_pnl", "kill_switch_active", "open_positions", "orders", "closed_trades", "deployed_strategies", "last_updated"} {
		assert.Contains(t, doc, key)
	}
	assert.Contains(t, doc["deployed_strategies"], "rsi-reversal")

	w = do(t, srv, http.MethodPost, "/api/state/reset", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodDelete, "/api/strategies/rsi-reversal", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
