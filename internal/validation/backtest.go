package validation

import (
	"context"
	"fmt"
	"math"
	"time"

	"marketintel/internal/core"
	"marketintel/internal/logger"
)

// minAlignedDays is the sample floor below which no result is produced.
const minAlignedDays = 5

// Store is the persistence surface validation needs.
type Store interface {
	GetDailySentimentHistory(days int) ([]core.DailySentimentPoint, error)
	GetMarketData(days int) ([]core.MarketDataPoint, error)
	SaveMarketData(points []core.MarketDataPoint) error
	SaveBacktest(b core.BacktestResult) error
	SaveWeeklyScorecard(c core.WeeklyScorecard) error
	SaveOptimizedWeights(w core.OptimizedWeights) error
}

// Backtester correlates the sentiment signal with market returns.
type Backtester struct {
	store  Store
	client *FinnhubClient
	symbol string
}

// NewBacktester creates a backtester for one symbol.
func NewBacktester(store Store, client *FinnhubClient, symbol string) *Backtester {
	return &Backtester{store: store, client: client, symbol: symbol}
}

// RefreshMarketData pulls fresh candles when a key is configured. Dates
// already stored are skipped by the store.
func (b *Backtester) RefreshMarketData(ctx context.Context, days int) error {
	if b.client == nil || !b.client.IsAvailable() {
		logger.Info("market data fetch disabled, using cached candles only")
		return nil
	}
	candles, err := b.client.FetchCandles(ctx, b.symbol, days)
	if err != nil {
		return fmt.Errorf("failed to fetch candles: %w", err)
	}
	if err := b.store.SaveMarketData(candles); err != nil {
		return fmt.Errorf("failed to persist candles: %w", err)
	}
	return nil
}

// Run aligns sentiment with returns over the window and persists the result.
// Fewer than five aligned days yields no result.
func (b *Backtester) Run(ctx context.Context, days int) (*core.BacktestResult, error) {
	if err := b.RefreshMarketData(ctx, days); err != nil {
		logger.Warn("market data refresh failed, continuing on cache", "error", err.Error())
	}

	sentiment, err := b.store.GetDailySentimentHistory(days)
	if err != nil {
		return nil, fmt.Errorf("failed to load sentiment history: %w", err)
	}
	market, err := b.store.GetMarketData(days)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data: %w", err)
	}

	pairs := Align(sentiment, market)
	if len(pairs) < minAlignedDays {
		return nil, fmt.Errorf("insufficient aligned days: %d (need %d)", len(pairs), minAlignedDays)
	}

	result := core.BacktestResult{
		RunAt:             time.Now().UTC(),
		Symbol:            b.symbol,
		AlignedDays:       len(pairs),
		Pearson:           Pearson(pairs),
		Spearman:          Spearman(pairs),
		DirectionAccuracy: DirectionAccuracy(pairs),
	}
	if err := b.store.SaveBacktest(result); err != nil {
		return nil, fmt.Errorf("failed to persist backtest: %w", err)
	}

	logger.Info("backtest complete",
		"symbol", b.symbol,
		"aligned_days", result.AlignedDays,
		"pearson", fmt.Sprintf("%.3f", result.Pearson),
		"direction_accuracy", fmt.Sprintf("%.2f", result.DirectionAccuracy),
	)
	return &result, nil
}

// WeeklyScorecard runs the backtest statistics restricted to the calendar
// week containing ref (weeks start Monday) and grades the result.
func (b *Backtester) WeeklyScorecard(ctx context.Context, ref time.Time) (*core.WeeklyScorecard, error) {
	weekStart := startOfWeek(ref.UTC())
	weekEnd := weekStart.AddDate(0, 0, 7)

	sentiment, err := b.store.GetDailySentimentHistory(14)
	if err != nil {
		return nil, fmt.Errorf("failed to load sentiment history: %w", err)
	}
	market, err := b.store.GetMarketData(14)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data: %w", err)
	}

	var weekPairs []AlignedPair
	for _, p := range Align(sentiment, market) {
		if p.SentimentDate >= weekStart.Format("2006-01-02") &&
			p.SentimentDate < weekEnd.Format("2006-01-02") {
			weekPairs = append(weekPairs, p)
		}
	}
	if len(weekPairs) < minAlignedDays {
		return nil, fmt.Errorf("insufficient aligned days in week: %d", len(weekPairs))
	}

	pearson := Pearson(weekPairs)
	accuracy := DirectionAccuracy(weekPairs)

	card := core.WeeklyScorecard{
		WeekStart:         weekStart.Format("2006-01-02"),
		AlignedDays:       len(weekPairs),
		Pearson:           pearson,
		DirectionAccuracy: accuracy,
		Grade:             grade(accuracy, pearson),
		GeneratedAt:       time.Now().UTC(),
	}
	if err := b.store.SaveWeeklyScorecard(card); err != nil {
		return nil, fmt.Errorf("failed to persist scorecard: %w", err)
	}
	return &card, nil
}

// grade combines direction accuracy and correlation magnitude linearly:
// 60% accuracy, 40% |Pearson|.
func grade(accuracy, pearson float64) string {
	score := 0.6*accuracy + 0.4*math.Abs(pearson)
	switch {
	case score >= 0.70:
		return "A"
	case score >= 0.55:
		return "B"
	case score >= 0.40:
		return "C"
	case score >= 0.25:
		return "D"
	default:
		return "F"
	}
}

// startOfWeek returns the Monday of t's week.
func startOfWeek(t time.Time) time.Time {
	day := t.Truncate(24 * time.Hour)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
