// Package advisor runs the analysis pipeline for one or many symbols:
// indicators and patterns, features, scoring, then signal generation.
package advisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"


	"crypto-trader/internal/analysis"
	"crypto-trader/internal/analysis/features"
	"crypto-trader/internal/analysis/indicators"
	"crypto-trader/internal/analysis/patterns"
	"crypto-trader/internal/analysis/scoring"
	"crypto-trader/internal/analysis/signals"
	"crypto-trader/internal/logging"
	"crypto-trader/internal/models"
)

// Config configures an Analyzer.
type Config struct {
	Profile string
	Signals signals.Config
	Workers int // parallel symbols; indicator workers per symbol
}

// Input is one symbol's data.
type Input struct {
	Symbol   string
	Series   *models.PriceSeries
	External models.ExternalSeries
}

// Report is the full analysis of one symbol.
type Report struct {
	Symbol     string                   `json:"symbol"`
	Indicators *indicators.IndicatorSet `json:"indicators"`
	Patterns   []analysis.Pattern       `json:"patterns"`
	Prediction *models.Prediction       `json:"prediction"`
	Signal     *models.Signal           `json:"signal,omitempty"`
}

// Batch is the result of AnalyzeAll.
type Batch struct {
	Reports []*Report         `json:"reports"`
	Signals []*models.Signal  `json:"signals"` // highest confidence first
	Errors  map[string]string `json:"errors,omitempty"`
}

// Analyzer wires the analysis components together.
type Analyzer struct {
	engine    *indicators.Engine
	detector  analysis.PatternDetector
	features  *features.Engine
	scorer    *scoring.Scorer
	generator *signals.Generator
	workers   int
}

// New creates an analyzer for the configured scoring profile.
func New(cfg Config) (*Analyzer, error) {
	scorer, err := scoring.NewScorer(cfg.Profile)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Analyzer{
		engine:    indicators.NewDefaultEngine(workers),
		detector:  patterns.NewChartPatternDetector(),
		features:  features.NewEngine(),
		scorer:    scorer,
		generator: signals.NewGenerator(cfg.Signals),
		workers:   workers,
	}, nil
}

// Profile returns the scoring profile in use.
func (a *Analyzer) Profile() scoring.Profile {
	return a.scorer.Profile()
}

// Analyze runs the pipeline for one symbol. It logs through the logger
// carried by ctx.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Report, error) {
	if in.Series == nil || in.Series.Len() == 0 {
		return nil, fmt.Errorf("%s: empty price series", in.Symbol)
	}
	logger := logging.WithSymbol(logging.WithOperation(logging.FromContext(ctx), "advisor"), in.Symbol)

	set, err := a.engine.Compute(ctx, in.Series)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to compute indicators: %w", in.Symbol, err)
	}

	detected := a.detector.Detect(in.Series.Prices())
	bundle := a.features.Build(in.Series, set, in.External)

	prediction := a.scorer.Predict(in.Symbol, bundle)
	logging.LogPrediction(logger, prediction)

	signal := a.generator.Generate(prediction, set)
	if signal != nil {
		logging.LogSignal(logger, signal)
	}

	logger.Debug().
		Int("indicators", len(set.Values)).
		Int("patterns", len(detected)).
		Msg("Analysis complete")

	return &Report{
		Symbol:     in.Symbol,
		Indicators: set,
		Patterns:   detected,
		Prediction: prediction,
		Signal:     signal,
	}, nil
}

type result struct {
	symbol string
	report *Report
	err    error
}

// AnalyzeAll analyzes every input in parallel. Per-symbol failures are
// collected in Batch.Errors; an error is returned only if every symbol
// failed or the context was cancelled.
func (a *Analyzer) AnalyzeAll(ctx context.Context, inputs []Input) (*Batch, error) {
	results := make(chan result, len(inputs))
	sem := make(chan struct{}, a.workers)

	var wg sync.WaitGroup
	for _, in := range inputs {
		wg.Add(1)
		go func(in Input) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{symbol: in.Symbol, err: ctx.Err()}
				return
			}

			report, err := a.Analyze(ctx, in)
			results <- result{symbol: in.Symbol, report: report, err: err}
		}(in)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	logger := logging.WithOperation(logging.FromContext(ctx), "advisor")
	batch := &Batch{Errors: make(map[string]string)}
	var signalList []*models.Signal
	for r := range results {
		if r.err != nil {
			logger.Warn().Err(r.err).Str("symbol", r.symbol).Msg("Analysis failed")
			batch.Errors[r.symbol] = r.err.Error()
			continue
		}
		batch.Reports = append(batch.Reports, r.report)
		if r.report.Signal != nil {
			signalList = append(signalList, r.report.Signal)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(batch.Reports) == 0 && len(inputs) > 0 {
		msgs := make([]string, 0, len(batch.Errors))
		for sym, msg := range batch.Errors {
			msgs = append(msgs, sym+": "+msg)
		}
		sort.Strings(msgs)
		return nil, fmt.Errorf("all symbols failed: %s", strings.Join(msgs, "; "))
	}

	sort.Slice(batch.Reports, func(i, j int) bool {
		return batch.Reports[i].Symbol < batch.Reports[j].Symbol
	})
	batch.Signals = signals.Rank(signalList)
	return batch, nil
}
