package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crypto-trader/internal/advisor"
	"crypto-trader/internal/config"
	"crypto-trader/internal/errors"
	"crypto-trader/internal/models"
	"crypto-trader/internal/notify"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Log.Console = false
	cfg.Log.File = false
	cfg.Watch.Symbols = nil
	return cfg
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(cfg, zerolog.Nop())
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writePrices(t *testing.T, dir, symbol string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,price,volume\n")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100 + 10*math.Sin(float64(i)/3) + float64(i)*0.1
		fmt.Fprintf(&b, "%s,%.4f,%d\n", base.Add(time.Duration(i)*time.Hour).Format(time.RFC3339), price, 100+i)
	}
	if err := os.WriteFile(filepath.Join(dir, symbol+".csv"), []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestTradeLifecycle(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "trade", "buy", "btc", "0.4", "--price", "50000", "--json")
	if err != nil {
		t.Fatalf("buy: %v\n%s", err, out)
	}
	var buy models.Trade
	if err := json.Unmarshal([]byte(out), &buy); err != nil {
		t.Fatalf("decode trade: %v\n%s", err, out)
	}
	if buy.Symbol != "BTC" || !buy.Commission.Equal(mustDecimal(t, "20")) {
		t.Errorf("unexpected trade %+v", buy)
	}

	// A fresh command tree must restore the ledger from the store.
	out, err = run(t, cfg, "portfolio", "show", "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var p models.Portfolio
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("decode portfolio: %v\n%s", err, out)
	}
	if !p.Cash.Equal(mustDecimal(t, "79980")) || len(p.Positions) != 1 {
		t.Errorf("unexpected portfolio after buy: cash %s, positions %d", p.Cash, len(p.Positions))
	}

	out, err = run(t, cfg, "trade", "sell", "BTC", "0.4", "--price", "55000", "--json")
	if err != nil {
		t.Fatalf("sell: %v\n%s", err, out)
	}
	var sell models.Trade
	if err := json.Unmarshal([]byte(out), &sell); err != nil {
		t.Fatal(err)
	}
	if sell.RealizedPnL == nil || !sell.RealizedPnL.Equal(mustDecimal(t, "1978")) {
		t.Errorf("realized = %v, want 1978", sell.RealizedPnL)
	}

	out, err = run(t, cfg, "trade", "history", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var trades []models.Trade
	if err := json.Unmarshal([]byte(out), &trades); err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 || trades[0].Side != models.SideSell {
		t.Errorf("history must list newest first, got %+v", trades)
	}

	out, err = run(t, cfg, "trade", "history", "--side", "buy", "--json")
	if err != nil {
		t.Fatal(err)
	}
	trades = nil
	if err := json.Unmarshal([]byte(out), &trades); err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].Side != models.SideBuy {
		t.Errorf("side filter returned %+v", trades)
	}

	out, err = run(t, cfg, "performance", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var perf struct {
		Performance struct {
			TotalTrades   int `json:"total_trades"`
			WinningTrades int `json:"winning_trades"`
		} `json:"performance"`
	}
	if err := json.Unmarshal([]byte(out), &perf); err != nil {
		t.Fatal(err)
	}
	if perf.Performance.TotalTrades != 1 || perf.Performance.WinningTrades != 1 {
		t.Errorf("tracker must replay the stored trade log: %+v", perf)
	}
}

func TestTradeRejected(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "trade", "buy", "BTC", "1", "--price", "30000")
	var riskErr *errors.RiskError
	if !errors.As(err, &riskErr) || riskErr.Rule != errors.RulePositionSize {
		t.Fatalf("expected position size rejection, got %v", err)
	}

	if _, err := run(t, cfg, "trade", "sell", "ETH", "1", "--price", "3000"); !errors.Is(err, errors.ErrInsufficientQuantity) {
		t.Errorf("expected ErrInsufficientQuantity, got %v", err)
	}
	if _, err := run(t, cfg, "trade", "buy", "ETH", "0", "--price", "3000"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	out, _ := run(t, cfg, "trade", "history", "--json")
	if strings.TrimSpace(out) != "null" {
		t.Errorf("rejected trades must not be recorded: %s", out)
	}
}

func TestMarkAndAllocation(t *testing.T) {
	cfg := testConfig(t)
	if _, err := run(t, cfg, "trade", "buy", "ETH", "5", "--price", "3000"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, cfg, "portfolio", "mark", "ETH=3300", "--json")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	var p models.Portfolio
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatal(err)
	}
	// cash 100000 - 15000 - 15 = 84985; ETH 5 * 3300 = 16500
	if !p.TotalValue.Equal(mustDecimal(t, "101485")) {
		t.Errorf("TotalValue = %s, want 101485", p.TotalValue)
	}

	out, err = run(t, cfg, "portfolio", "allocation", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var entries []models.AllocationEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Symbol != "CASH" || entries[1].Symbol != "ETH" {
		t.Errorf("unexpected allocation %+v", entries)
	}

	if _, err := run(t, cfg, "portfolio", "mark", "ETH"); err == nil {
		t.Error("expected error for malformed quote")
	}
}

func TestAnalyzeUsesPriceCache(t *testing.T) {
	cfg := testConfig(t)
	dataDir := t.TempDir()
	writePrices(t, dataDir, "BTC", 120)

	out, err := run(t, cfg, "analyze", "BTC", "MISSING", "--data-dir", dataDir, "--json")
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	var batch struct {
		Reports []struct {
			Symbol string `json:"symbol"`
		} `json:"reports"`
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal([]byte(out), &batch); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(batch.Reports) != 1 || batch.Reports[0].Symbol != "BTC" {
		t.Errorf("unexpected reports %+v", batch.Reports)
	}
	if _, ok := batch.Errors["MISSING"]; !ok {
		t.Errorf("missing symbol must be reported, got %v", batch.Errors)
	}

	// The CSV is gone; the cached series is used.
	out, err = run(t, cfg, "analyze", "BTC", "--data-dir", t.TempDir(), "--json")
	if err != nil {
		t.Fatalf("analyze from cache: %v\n%s", err, out)
	}

	if _, err := run(t, cfg, "analyze", "BTC", "--profile", "nope"); !errors.Is(err, errors.ErrUnknownScoringProfile) {
		t.Errorf("expected ErrUnknownScoringProfile, got %v", err)
	}
}

func TestWatchlistAndWatchOnce(t *testing.T) {
	cfg := testConfig(t)
	dataDir := t.TempDir()
	writePrices(t, dataDir, "SOL", 100)
	cfg.Watch.DataDir = dataDir

	if _, err := run(t, cfg, "watchlist", "add", "sol", "eth", "SOL"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, cfg, "watchlist", "remove", "eth"); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, cfg, "watchlist", "list", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var wl struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal([]byte(out), &wl); err != nil {
		t.Fatal(err)
	}
	if len(wl.Symbols) != 1 || wl.Symbols[0] != "SOL" {
		t.Errorf("watchlist = %v", wl.Symbols)
	}

	if _, err := run(t, cfg, "trade", "buy", "SOL", "10", "--json"); err != nil {
		t.Fatalf("buy at latest csv price: %v", err)
	}

	out, err = run(t, cfg, "watch", "--once", "--json")
	if err != nil {
		t.Fatalf("watch: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"symbol": "SOL"`) {
		t.Errorf("watch tick did not analyze SOL: %s", out)
	}

	out, err = run(t, cfg, "portfolio", "export", "--format", "yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "value_history:") || !strings.Contains(out, "- SOL") {
		t.Errorf("export must include the mark and watchlist:\n%s", out)
	}
}

func TestConfigCommands(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "config", "path")
	if err != nil || strings.TrimSpace(out) != cfg.Path() {
		t.Errorf("config path = %q, %v", out, err)
	}
	if _, err := run(t, cfg, "config", "validate"); err != nil {
		t.Errorf("validate: %v", err)
	}
	out, _ = run(t, cfg, "version", "--json")
	if !strings.Contains(out, Version) {
		t.Errorf("version output %q", out)
	}
}

func TestTradeSendsWebhook(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		received <- payload
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.Notify.Webhook = notify.WebhookConfig{Enabled: true, URL: server.URL}

	if _, err := run(t, cfg, "trade", "buy", "ETH", "1", "--price", "3000"); err != nil {
		t.Fatal(err)
	}

	select {
	case payload := <-received:
		if payload["type"] != "trade" || payload["symbol"] != "ETH" {
			t.Errorf("unexpected payload %v", payload)
		}
	default:
		t.Fatal("trade notification was not delivered")
	}
}

func TestNotifierWithoutChannelsIsNoOp(t *testing.T) {
	app := &App{Config: testConfig(t), Logger: zerolog.Nop()}
	if _, ok := app.notifier(nil, false).(*notify.NoOpNotifier); !ok {
		t.Errorf("expected a no-op notifier, got %T", app.Notifier)
	}

	app = &App{Config: testConfig(t), Logger: zerolog.Nop()}
	var buf bytes.Buffer
	if _, ok := app.notifier(&buf, false).(*notify.MultiNotifier); !ok {
		t.Errorf("terminal output must enable the multi notifier, got %T", app.Notifier)
	}
}

func TestIndicatorsCommand(t *testing.T) {
	out, err := run(t, testConfig(t), "indicators", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := json.Unmarshal([]byte(out), &names); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(names) != 14 || names[0] != "atr" {
		t.Errorf("unexpected indicator list %v", names)
	}
}

type signalRecorder struct {
	notify.NoOpNotifier
	signals []models.Signal
}

func (r *signalRecorder) SendSignal(ctx context.Context, signal models.Signal) error {
	r.signals = append(r.signals, signal)
	return nil
}

func TestWatcherNotifiesSideChanges(t *testing.T) {
	rec := &signalRecorder{}
	w := &watcher{
		app:      &App{Logger: zerolog.Nop()},
		notifier: rec,
		last:     make(map[string]models.Side),
	}
	batch := func(sides ...models.Side) *advisor.Batch {
		b := &advisor.Batch{}
		for i, side := range sides {
			b.Signals = append(b.Signals, &models.Signal{Symbol: fmt.Sprintf("S%d", i), Type: side})
		}
		return b
	}

	ctx := context.Background()
	if n := w.notifySignals(ctx, batch(models.SideBuy, models.SideSell)); n != 2 {
		t.Errorf("first tick sent %d, want 2", n)
	}
	if n := w.notifySignals(ctx, batch(models.SideBuy, models.SideSell)); n != 0 {
		t.Errorf("repeated signals sent %d, want 0", n)
	}
	if n := w.notifySignals(ctx, batch(models.SideSell)); n != 1 {
		t.Errorf("side change sent %d, want 1", n)
	}
	w.notifySignals(ctx, batch())
	if n := w.notifySignals(ctx, batch(models.SideSell)); n != 1 {
		t.Errorf("signal after a quiet tick sent %d, want 1", n)
	}
	if len(rec.signals) != 4 {
		t.Errorf("recorded %d signals, want 4", len(rec.signals))
	}
}
