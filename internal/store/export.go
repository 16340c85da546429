package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"crypto-trader/internal/models"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Snapshot is a plain-record export of the persisted ledger state.
type Snapshot struct {
	ExportedAt   time.Time           `json:"exported_at" yaml:"exported_at"`
	Portfolio    *models.Portfolio   `json:"portfolio" yaml:"portfolio"`
	Trades       []models.Trade      `json:"trades" yaml:"trades"`
	ValueHistory []models.ValuePoint `json:"value_history" yaml:"value_history"`
	Watchlist    []string            `json:"watchlist" yaml:"watchlist"`
}

// Snapshot collects the full persisted state.
func (s *SQLiteStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	portfolio, err := s.LoadPortfolio(ctx)
	if err != nil {
		return nil, err
	}
	trades, err := s.TradeLog(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.ValueHistory(ctx)
	if err != nil {
		return nil, err
	}
	watchlist, err := s.GetWatchlist(ctx, DefaultWatchlist)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		ExportedAt:   time.Now().UTC(),
		Portfolio:    portfolio,
		Trades:       trades,
		ValueHistory: history,
		Watchlist:    watchlist,
	}, nil
}

// WriteSnapshot encodes snap to w as JSON or YAML.
func WriteSnapshot(w io.Writer, snap *Snapshot, format string) error {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
