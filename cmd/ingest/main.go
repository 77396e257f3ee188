package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ohlcv_backend/internal/app/di"
	"ohlcv_backend/internal/feature/candles/domain/entity"
	"ohlcv_backend/internal/feature/candles/usecase"
	symboladapters "ohlcv_backend/internal/feature/symbollist/adapters"
	symbolusecase "ohlcv_backend/internal/feature/symbollist/usecase"
	"ohlcv_backend/internal/platform/config"
)

type options struct {
	symbol   string
	interval string
	start    string
	end      string
	max      int
	all      bool
	track    string
	list     string
	n        int
}

func main() {
	var opts options
	flag.StringVar(&opts.symbol, "symbol", "", "trading pair to ingest, e.g. BTCUSDT")
	flag.StringVar(&opts.interval, "interval", "", "candle interval token (default 15m, or the tracked interval with -all)")
	flag.StringVar(&opts.start, "start", "", "window start date (default "+usecase.DefaultStartDate+")")
	flag.StringVar(&opts.end, "end", "", "window end date (default "+usecase.DefaultEndDate+")")
	flag.IntVar(&opts.max, "max", usecase.DefaultMaxCandles, "stop issuing new batches after this many candles")
	flag.BoolVar(&opts.all, "all", false, "ingest every active tracked symbol")
	flag.StringVar(&opts.track, "track", "", "add a symbol to the tracked list and exit")
	flag.StringVar(&opts.list, "list", "", "print stored candles of a symbol, newest first, and exit")
	flag.IntVar(&opts.n, "n", usecase.DefaultOutputSize, "number of candles printed with -list")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		slog.Error("ingest failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	res, err := di.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	symbolUC := symbolusecase.NewSymbolUsecase(symboladapters.NewSymbolRepository(res.DB))

	if opts.track != "" {
		added, err := symbolUC.TrackSymbol(ctx, opts.track, opts.interval)
		if err != nil {
			return err
		}
		slog.Info("symbol tracked", "symbol", opts.track, "added", added)
		return nil
	}

	store, err := di.NewCandleStore(res, cfg)
	if err != nil {
		return err
	}
	if opts.list != "" {
		return listCandles(ctx, os.Stdout, store, opts.list, opts.n)
	}
	ingestUC := di.NewIngestUsecase(cfg, store)

	if opts.all {
		return ingestTracked(ctx, ingestUC, symbolUC, opts)
	}

	if opts.symbol == "" {
		return errors.New("-symbol is required unless -all, -list or -track is given")
	}
	summary, err := ingestUC.FetchAndStore(ctx, usecase.FetchParams{
		Symbol:     opts.symbol,
		Interval:   opts.interval,
		StartDate:  opts.start,
		EndDate:    opts.end,
		MaxCandles: opts.max,
	})
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, summary)
}

// ingestTracked は追跡中の全銘柄をそれぞれの足種で取り込みます。
func ingestTracked(ctx context.Context, ingestUC *usecase.IngestUsecase, symbolUC *symbolusecase.SymbolUsecase, opts options) error {
	symbols, err := symbolUC.ListActiveSymbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to load symbols: %w", err)
	}

	reqs := make([]entity.IngestionRequest, 0, len(symbols))
	for _, s := range symbols {
		iv := s.Interval
		if opts.interval != "" {
			iv = opts.interval
		}
		req, err := usecase.FetchParams{
			Symbol:     s.Code,
			Interval:   iv,
			StartDate:  opts.start,
			EndDate:    opts.end,
			MaxCandles: opts.max,
		}.Request()
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
	}

	results, err := ingestUC.IngestAll(ctx, reqs)
	summaries := make(map[string]usecase.FetchSummary, len(results))
	for i, r := range results {
		summaries[reqs[i].Symbol] = usecase.FetchSummary{TotalFetched: r.TotalFetched, InsertedNew: r.InsertedNew}
	}
	if perr := printJSON(os.Stdout, summaries); perr != nil {
		return perr
	}
	return err
}

// listCandles は保存済みのローソク足を新しい順に出力します。
func listCandles(ctx context.Context, w io.Writer, repo usecase.CandleRepository, symbol string, n int) error {
	candles, err := usecase.NewCandlesUsecase(repo).GetCandles(ctx, symbol, n)
	if err != nil {
		return err
	}
	slog.Info("candles listed", "symbol", symbol, "count", len(candles))
	return printJSON(w, candles)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
