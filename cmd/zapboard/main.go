package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/davidebtc/zapboard/internal/config"
	"github.com/davidebtc/zapboard/internal/http_api"
	"github.com/davidebtc/zapboard/internal/models"
	"github.com/davidebtc/zapboard/internal/notificator"
	"github.com/davidebtc/zapboard/internal/relay"
	"github.com/davidebtc/zapboard/internal/repository"
	"github.com/davidebtc/zapboard/internal/zap"
	"github.com/davidebtc/zapboard/internal/zapboard"
	"github.com/davidebtc/zapboard/pkg/logger"
	"github.com/davidebtc/zapboard/pkg/nostr"
)

func main() {
	app := &cli.App{
		Name:  "zapboard",
		Usage: "Zapboard ingests Nostr zap receipts, thanks the zappers and keeps a weekly leaderboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "relays", Aliases: []string{"r"}, Usage: "Comma separated relay URLs"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
			&cli.Int64Flag{Name: "min-zap-sats", Aliases: []string{"m"}, Usage: "Minimal sats for a zap to count"},
			&cli.Int64Flag{Name: "max-sats-per-zap", Aliases: []string{"M"}, Usage: "Clamp bound for resolved amounts"},
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "Port for the ops HTTP API"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
		Commands: []*cli.Command{
			{
				Name:  "publish-leaderboard",
				Usage: "Post the leaderboard for one week and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "week", Usage: "ISO week (e.g. 2025-W36); defaults to the previous week"},
					&cli.IntFlag{Name: "top", Usage: "How many payers to show"},
				},
				Action: func(c *cli.Context) error {
					return runPublishLeaderboard(c)
				},
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("min-zap-sats") {
		cfg.MinZapSats = c.Int64("min-zap-sats")
	}
	if c.IsSet("max-sats-per-zap") {
		cfg.MaxSatsPerZap = c.Int64("max-sats-per-zap")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}

	return cfg, nil
}

// buildApp wires the shared components: logger, ledger, relay client,
// operator alerts and the pipeline service.
func buildApp(c *cli.Context) (*zapboard.Zapboard, models.Repository, *config.Config, *logger.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	// Decode the service identity
	sk, err := nostr.DecodeNsec(cfg.Nsec)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to decode NSEC: %v", err)
	}
	log.Info("Service identity ", "npub ", nostr.PayerLabel(nostr.PubkeyHex(sk)))

	// Initialize relay client
	relayClient := relay.NewClient(cfg.Relays, nostr.PubkeyHex(sk), cfg.AllowSelfZap, log)

	// Initialize operator alerts
	var telegram *notificator.TelegramNotificator
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegram, err = notificator.NewTelegramNotificator(log, cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to initialize telegram notificator: %v", err)
		}
	}
	notifier := notificator.NewNotificator(log, telegram)

	// Create Zapboard instance
	boardApp := zapboard.NewZapboard(db, relayClient, notifier, log, cfg, sk)

	return boardApp, db, cfg, log, nil
}

func run(c *cli.Context) error {
	boardApp, db, cfg, log, err := buildApp(c)
	if err != nil {
		return err
	}
	defer db.Close()

	apiServer := http_api.NewHTTPServer(boardApp, cfg, log)
	go apiServer.Start()
	defer apiServer.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the application
	return boardApp.Start(ctx)
}

func runPublishLeaderboard(c *cli.Context) error {
	boardApp, db, cfg, _, err := buildApp(c)
	if err != nil {
		return err
	}
	defer db.Close()

	week := c.String("week")
	if week == "" {
		week = zap.PrevWeekKey(time.Now())
	}
	top := cfg.TopN
	if c.IsSet("top") {
		top = c.Int("top")
	}

	return boardApp.PublishLeaderboard(week, top)
}
