package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"trade-strategy-bot-go/internal/backtest"
	"trade-strategy-bot-go/internal/config"
	"trade-strategy-bot-go/internal/downloader"
	"trade-strategy-bot-go/internal/logger"
	"trade-strategy-bot-go/internal/marketwatch"
	"trade-strategy-bot-go/internal/models"
	"trade-strategy-bot-go/internal/reporter"
	"trade-strategy-bot-go/internal/scheduler"
	"trade-strategy-bot-go/internal/store"
	"trade-strategy-bot-go/internal/strategy"
	"trade-strategy-bot-go/internal/tradeapi"
)

const backtestInitialBalance = 10000.0

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	mode := flag.String("mode", "live", "run mode: live or backtest")
	dataPath := flag.String("data", "", "backtest: candle CSV file (downloaded when missing)")
	symbol := flag.String("symbol", "", "backtest: pair symbol to replay, defaults to the first configured pair")
	startDate := flag.String("start", "", "backtest: start date, YYYY-MM-DD")
	endDate := flag.String("end", "", "backtest: end date, YYYY-MM-DD")
	flag.Parse()

	// Credentials may come from a .env file next to the binary.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	defer log.Sync()

	switch *mode {
	case "live":
		err = runLive(cfg, log)
	case "backtest":
		err = runBacktest(cfg, log, *dataPath, *symbol, *startDate, *endDate)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatalw("bot stopped", "error", err)
	}
}

func buildAPI(name string, apiCfg models.APIConfig, log *zap.SugaredLogger) (tradeapi.TradeAPI, error) {
	switch name {
	case "binance":
		return tradeapi.NewBinance(apiCfg, log), nil
	default:
		return nil, fmt.Errorf("unknown broker api %q", name)
	}
}

func runLive(cfg *models.Config, log *zap.SugaredLogger) error {
	st, err := store.NewBadger(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open the database: %w", err)
	}
	defer st.Close()

	sched := scheduler.New(log)
	watched := make(map[string]models.APIConfig)

	for _, user := range cfg.Users {
		for _, pair := range user.Pairs {
			apiCfg := user.APIs[pair.APIName]
			api, err := buildAPI(pair.APIName, apiCfg, log)
			if err != nil {
				return err
			}
			build, ok := strategy.ForName(pair.Strategy)
			if !ok {
				return fmt.Errorf("unknown strategy %q for pair %s", pair.Strategy, pair)
			}

			deps := strategy.Deps{
				Pair:       pair,
				UserID:     user.ID,
				API:        api,
				Orders:     st,
				Portfolios: st,
				Log:        log,
			}
			name := fmt.Sprintf("%s/%s/%s", user.ID, pair.Strategy, pair)
			err = sched.Add(pair.Schedule, name, func(ctx context.Context) error {
				return build(deps).Dispatch(ctx, strategy.EventExec, nil)
			})
			if err != nil {
				return fmt.Errorf("failed to schedule %s: %w", name, err)
			}
			log.Infow("scheduled", "job", name, "schedule", pair.Schedule)

			if pair.Make != "" && pair.Take != "" {
				watched[pair.Symbol()] = apiCfg
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for symbol, apiCfg := range watched {
		watcher := marketwatch.New(apiCfg.WSBaseURL, symbol, log)
		go watcher.Run(ctx)
		go func() {
			for tick := range watcher.Ticks() {
				log.Debugw("price update", "symbol", tick.Symbol, "price", tick.Close)
			}
		}()
	}

	sched.Start()
	log.Infow("bot started", "users", len(cfg.Users))

	<-ctx.Done()
	log.Infow("shutting down")
	<-sched.Stop().Done()
	return nil
}

func findPair(cfg *models.Config, symbol string) (models.UserConfig, models.Pair, error) {
	for _, user := range cfg.Users {
		for _, pair := range user.Pairs {
			if symbol == "" || pair.Symbol() == symbol {
				return user, pair, nil
			}
		}
	}
	return models.UserConfig{}, models.Pair{}, fmt.Errorf("no configured pair matches symbol %q", symbol)
}

func runBacktest(cfg *models.Config, log *zap.SugaredLogger, dataPath, symbol, startDate, endDate string) error {
	ctx := context.Background()

	user, pair, err := findPair(cfg, symbol)
	if err != nil {
		return err
	}

	if dataPath == "" {
		if startDate == "" || endDate == "" {
			return fmt.Errorf("either -data or -start and -end are required")
		}
		start, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return fmt.Errorf("bad start date: %w", err)
		}
		end, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return fmt.Errorf("bad end date: %w", err)
		}

		dataPath = filepath.Join("data",
			fmt.Sprintf("%s_%s_%s_%s.csv", pair.Symbol(), pair.CandlesConfig.Interval, startDate, endDate))
		dl := downloader.NewKlineDownloader(log)
		if err := dl.DownloadKlines(ctx, pair.Symbol(), pair.CandlesConfig.Interval, dataPath, start, end); err != nil {
			return err
		}
	}

	candles, err := backtest.LoadCandles(dataPath)
	if err != nil {
		return err
	}
	log.Infow("replaying",
		"pair", pair.String(),
		"strategy", pair.Strategy,
		"candles", len(candles),
	)

	initialBalance := map[string]float64{pair.Take: backtestInitialBalance}
	feed := tradeapi.NewBacktest(candles,
		map[string]float64{pair.Take: backtestInitialBalance}, 10, log)

	mem := store.NewMemory()
	build, ok := strategy.ForName(pair.Strategy)
	if !ok {
		return fmt.Errorf("unknown strategy %q", pair.Strategy)
	}
	deps := strategy.Deps{
		Pair:       pair,
		UserID:     user.ID,
		API:        feed,
		Orders:     mem,
		Portfolios: mem,
		Log:        log,
	}

	if err := backtest.Run(ctx, feed, build, deps, log); err != nil {
		return err
	}

	recent, err := feed.GetOrders(ctx, pair)
	if err != nil {
		return err
	}
	trades := make([]models.Order, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		trades = append(trades, recent[i])
	}

	finalBalance, err := feed.GetPairBalance(ctx, pair)
	if err != nil {
		return err
	}

	summary := reporter.Summary{
		Pair:           pair,
		Trades:         trades,
		InitialBalance: initialBalance,
		FinalBalance:   finalBalance,
		FinalPrice:     candles[len(candles)-1].Close,
		Start:          time.UnixMilli(candles[0].OpenTime),
		End:            time.UnixMilli(candles[len(candles)-1].CloseTime),
	}
	summary.Render(os.Stdout)
	return nil
}
