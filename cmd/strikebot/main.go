package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/strikebot-labs/strikebot/internal/backtest"
	"github.com/strikebot-labs/strikebot/internal/bot"
	"github.com/strikebot-labs/strikebot/internal/broker"
	"github.com/strikebot-labs/strikebot/internal/config"
	"github.com/strikebot-labs/strikebot/internal/datasource"
	"github.com/strikebot-labs/strikebot/internal/logger"
	"github.com/strikebot-labs/strikebot/internal/server"
	"github.com/strikebot-labs/strikebot/internal/storage"
	"github.com/strikebot-labs/strikebot/internal/types"
)

func main() {
	cmd := &cli.Command{
		Name:  "strikebot",
		Usage: "automated index options trading bot",
		Commands: []*cli.Command{
			serveCommand(),
			backtestCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the trading bot with its HTTP control API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the YAML configuration file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}

			log, err := logger.NewLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := storage.Open(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			// A mode switched over the API outlives the process.
			if mode, ok := store.Setting("trading.mode"); ok && (mode == "paper" || mode == "live") {
				cfg.Trading.Mode = mode
			}

			hub := bot.NewStateHub()

			factory := func(cfg *config.Config) (*bot.Controller, error) {
				client, err := buildClient(cfg, log)
				if err != nil {
					return nil, err
				}

				return bot.NewController(cfg, client, store, hub, log)
			}

			srv := server.New(cfg, hub, store, factory, log)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("starting",
				zap.String("index", cfg.Trading.Index),
				zap.String("mode", cfg.Trading.Mode),
				zap.String("strategy", string(cfg.Strategy.Mode)))

			return srv.ListenAndServe(ctx)
		},
	}
}

// buildClient wires the execution client for the configured trading mode.
// Paper mode wraps the real venue for quotes when credentials are present,
// and synthesizes premiums on its own otherwise.
func buildClient(cfg *config.Config, log *logger.Logger) (broker.ExecutionClient, error) {
	if cfg.Trading.Mode == "live" {
		return broker.NewDhanClient(cfg.Broker.AccessToken, cfg.Broker.ClientID, cfg.Broker.BaseURL, log)
	}

	var inner broker.ExecutionClient

	if cfg.Broker.AccessToken != "" && cfg.Broker.ClientID != "" {
		dhan, err := broker.NewDhanClient(cfg.Broker.AccessToken, cfg.Broker.ClientID, cfg.Broker.BaseURL, log)
		if err != nil {
			return nil, err
		}

		inner = dhan
	}

	return broker.NewPaperClient(inner, log), nil
}

func backtestCommand() *cli.Command {
	return &cli.Command{
		Name:  "backtest",
		Usage: "replay a CSV candle file through the decision and risk kernel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:     "csv",
				Usage:    "path to the candle CSV file",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "resample",
				Usage: "resample candles to this window in seconds before replaying",
			},
			&cli.BoolFlag{
				Name:  "close-at-end",
				Value: true,
				Usage: "force-close an open position on the final candle",
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "write the full result to this YAML file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}

			log, err := logger.NewDevelopmentLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			src, err := datasource.NewCSVSource(cmd.String("csv"), log)
			if err != nil {
				return err
			}
			defer src.Close()

			candles, err := src.ReadAll()
			if err != nil {
				return err
			}

			opts := backtest.ReplayOptions(cfg, int(cmd.Int("resample")), cmd.Bool("close-at-end"))

			bar := progressbar.Default(int64(len(candles)), "replaying")
			opts.Progress = func(i, total int) {
				bar.Set(i)
			}

			replayer, err := backtest.NewReplayer(opts, log)
			if err != nil {
				return err
			}

			result, err := replayer.Run(candles)
			if err != nil {
				return err
			}

			bar.Finish()
			fmt.Println()

			printResult(result)

			if path := cmd.String("output"); path != "" {
				if err := types.WriteBacktestResult(path, result); err != nil {
					return err
				}

				fmt.Printf("full result written to %s\n", path)
			}

			return nil
		},
	}
}

func printResult(result types.BacktestResult) {
	trades := tablewriter.NewWriter(os.Stdout)
	trades.Header("ID", "Kind", "Entry", "Exit", "PnL (pts)", "Reason")

	for _, t := range result.Trades {
		trades.Append(
			t.TradeID,
			string(t.Kind),
			fmt.Sprintf("%.2f", t.EntryPrice),
			fmt.Sprintf("%.2f", t.ExitPrice),
			fmt.Sprintf("%+.2f", t.PnLPoints),
			t.ExitReason,
		)
	}

	trades.Render()

	m := result.Metrics

	metrics := tablewriter.NewWriter(os.Stdout)
	metrics.Header("Candles", "Trades", "Total PnL (pts)", "Win Rate", "Avg Win", "Avg Loss", "Max DD")
	metrics.Append(
		fmt.Sprintf("%d", result.CandleCount),
		fmt.Sprintf("%d", m.TotalTrades),
		fmt.Sprintf("%+.2f", m.TotalPnLPoints),
		fmt.Sprintf("%.1f%%", m.WinRate),
		fmt.Sprintf("%.2f", m.AvgWin),
		fmt.Sprintf("%.2f", m.AvgLoss),
		fmt.Sprintf("%.2f", m.MaxDrawdown),
	)
	metrics.Render()
}
