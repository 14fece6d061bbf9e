package us

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradesim/internal/domain"
	"tradesim/internal/metrics"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

const defaultNewsLimit = 50

// NewsSentimentGatherer fetches Alpaca news per symbol, scores every
// article with the lexicon scorer and stores one SentimentScore per symbol
// and session day.
type NewsSentimentGatherer struct {
	client MarketData
	store  store.SentimentStore
	market string
	opts   Options
	et     *time.Location
	log    *slog.Logger
}

// NewNewsSentimentGatherer creates a NewsSentimentGatherer writing to s.
func NewNewsSentimentGatherer(client MarketData, s store.SentimentStore, market string, opts Options) (*NewsSentimentGatherer, error) {
	opts = opts.withDefaults()
	if opts.NewsLimit <= 0 {
		opts.NewsLimit = defaultNewsLimit
	}
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}
	return &NewsSentimentGatherer{
		client: client,
		store:  s,
		market: market,
		opts:   opts,
		et:     et,
		log:    opts.Logger.With("gatherer", "us-news"),
	}, nil
}

// Name returns the gatherer identifier.
func (g *NewsSentimentGatherer) Name() string { return "us-news" }

// Run fetches and scores news for every symbol not yet done. Symbols are
// fetched one per request since Alpaca tags an article with every symbol it
// mentions.
func (g *NewsSentimentGatherer) Run(ctx context.Context) error {
	endDate, err := g.opts.End(ctx)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}
	endDate = util.Day(endDate)
	endDateStr := endDate.Format("2006-01-02")

	tracker, err := openTracker(g.opts.StateDir, "news", endDateStr)
	if err != nil {
		return err
	}
	if tracker != nil {
		defer tracker.Close()
		if tracker.IsCompleted(endDateStr) {
			g.log.Info("already completed", "endDate", endDateStr)
			return nil
		}
	}

	remaining := pending(g.opts.Symbols, tracker)
	batches := make([][]string, len(remaining))
	for i, sym := range remaining {
		batches[i] = []string{sym}
	}
	g.log.Info("starting us-news", "endDate", endDateStr, "remaining", len(remaining))

	var stored atomic.Int64
	failed := runBatches(ctx, batches, g.opts.MaxWorkers, func(_ int, batch []string) error {
		sym := batch[0]
		scores, err := g.gatherSymbol(ctx, sym, g.opts.Start, endDate)
		if err != nil {
			return fmt.Errorf("%s: %w", sym, err)
		}
		if len(scores) > 0 {
			if err := g.store.WriteSentiment(ctx, g.market, scores); err != nil {
				return fmt.Errorf("writing sentiment for %s: %w", sym, err)
			}
		}
		if tracker != nil {
			if err := tracker.MarkDone(batch); err != nil {
				g.log.Error("marking done failed", "err", err)
			}
		}
		stored.Add(int64(len(scores)))
		metrics.RecordIngest("sentiment", len(scores))
		g.log.Debug("symbol done", "symbol", sym, "days", len(scores))
		return nil
	}, g.log)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d symbols failed", failed, len(batches))
	}
	if tracker != nil {
		if err := tracker.MarkCompleted(endDateStr); err != nil {
			return fmt.Errorf("marking completed: %w", err)
		}
	}
	g.log.Info("complete", "days", stored.Load())
	return nil
}

func (g *NewsSentimentGatherer) gatherSymbol(ctx context.Context, symbol string, start, end time.Time) ([]domain.SentimentScore, error) {
	if err := g.opts.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var news []marketdata.News
	err := util.Retry(ctx, fetchAttempts, fetchBackoff, func() error {
		var ferr error
		news, ferr = g.client.GetNews(marketdata.GetNewsRequest{
			Symbols:            []string{symbol},
			Start:              start,
			End:                end.AddDate(0, 0, 1),
			TotalLimit:         g.opts.NewsLimit,
			IncludeContent:     true,
			ExcludeContentless: false,
			Sort:               marketdata.SortAsc,
		})
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetNews: %w", err)
	}

	articles := make([]ScoredArticle, 0, len(news))
	for _, n := range news {
		body := n.Summary
		if n.Content != "" {
			body = ExtractSymbolContent(n.Content, symbol)
		}
		articles = append(articles, ScoredArticle{
			Time:  n.CreatedAt,
			Score: ScoreArticle(n.Headline, body),
		})
	}
	return AggregateDaily(symbol, articles, g.et, end), nil
}

// ScoredArticle is one article's publication time and polarity.
type ScoredArticle struct {
	Time  time.Time
	Score ArticleScore
}

// sessionDay maps a publication time to the trading session it can first
// inform: news at or after the 16:00 ET close counts toward the next day.
func sessionDay(t time.Time, et *time.Location) time.Time {
	local := t.In(et)
	if local.Hour() >= 16 {
		local = local.AddDate(0, 0, 1)
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// AggregateDaily folds scored articles into one SentimentScore per session
// day, ordered by day. Score is the confidence-weighted mean polarity, or the
// plain mean when no article carries a polarity word; Confidence is the mean
// article confidence. Days after end are dropped.
func AggregateDaily(symbol string, articles []ScoredArticle, et *time.Location, end time.Time) []domain.SentimentScore {
	type acc struct {
		weighted, weight, plain, conf float64
		n                            int
	}
	byDay := make(map[time.Time]*acc)
	for _, a := range articles {
		day := sessionDay(a.Time, et)
		if day.After(end) {
			continue
		}
		d := byDay[day]
		if d == nil {
			d = &acc{}
			byDay[day] = d
		}
		d.weighted += a.Score.Polarity * a.Score.Confidence
		d.weight += a.Score.Confidence
		d.plain += a.Score.Polarity
		d.conf += a.Score.Confidence
		d.n++
	}

	out := make([]domain.SentimentScore, 0, len(byDay))
	for day, d := range byDay {
		score := d.plain / float64(d.n)
		if d.weight > 0 {
			score = d.weighted / d.weight
		}
		out = append(out, domain.SentimentScore{
			Symbol:     symbol,
			Timestamp:  day,
			Score:      math.Max(-1, math.Min(1, score)),
			Confidence: d.conf / float64(d.n),
			Articles:   d.n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
