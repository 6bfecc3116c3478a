package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/botapi"
	"github.com/tgwarden/warden/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "moderation gate for a chat account (keeps strangers at the door)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "telegram-api-host",
			Usage:   "method, hostname, and port of the Bot API server",
			Value:   botapi.DefaultHost,
			EnvVars: []string{"WARDEN_TELEGRAM_API_HOST"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.IntFlag{
			Name:    "max-metadb-connections",
			EnvVars: []string{"MAX_METADB_CONNECTIONS"},
			Value:   40,
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "trace SQL record store queries with OpenTelemetry",
			EnvVars: []string{"WARDEN_DB_TRACING"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "telegram-token",
			Usage:    "Bot API token",
			Required: true,
			EnvVars:  []string{"BOT_TOKEN", "WARDEN_TELEGRAM_TOKEN"},
		},
		&cli.Int64Flag{
			Name:     "operator-id",
			Usage:    "numeric account id of the operator; the only sender allowed to run commands",
			Required: true,
			EnvVars:  []string{"OPERATOR_ID", "WARDEN_OPERATOR_ID"},
		},
		&cli.StringFlag{
			Name:    "record-store",
			Usage:   "where sender records are kept: memory://, pebble://<dir>, redis://..., sqlite://<file>, postgres://...",
			Value:   "pebble://data/warden/records",
			EnvVars: []string{"WARDEN_RECORD_STORE"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL, for counters, handle cache, and update cursor",
			EnvVars: []string{"WARDEN_REDIS_URL"},
		},
		&cli.BoolFlag{
			Name:    "moderate-groups",
			Usage:   "apply quotas to messages in group chats too",
			EnvVars: []string{"WARDEN_MODERATE_GROUPS"},
		},
		&cli.BoolFlag{
			Name:    "reply-unauthorized",
			Usage:   "reply to rejected commands",
			EnvVars: []string{"WARDEN_REPLY_UNAUTHORIZED"},
		},
		&cli.BoolFlag{
			Name:    "delete-banned",
			Usage:   "delete messages from banned senders",
			EnvVars: []string{"WARDEN_DELETE_BANNED"},
		},
		&cli.BoolFlag{
			Name:    "forward-first-contact",
			Usage:   "forward the first message of each new sender to the operator",
			Value:   true,
			EnvVars: []string{"WARDEN_FORWARD_FIRST_CONTACT"},
		},
		&cli.StringFlag{
			Name:    "command-prefixes",
			Usage:   "comma-separated command prefixes",
			Value:   "/,.",
			EnvVars: []string{"WARDEN_COMMAND_PREFIXES"},
		},
		&cli.IntFlag{
			Name:    "max-warnings",
			Usage:   "warnings given before a sender is banned",
			Value:   5,
			EnvVars: []string{"WARDEN_MAX_WARNINGS"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook, for ban notifications",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the keep-alive and health endpoints",
			Value:   ":10000",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "number of events handled in parallel (one sender at a time)",
			Value:   16,
			EnvVars: []string{"WARDEN_WORKERS"},
		},
		&cli.Float64Flag{
			Name:    "telegram-rate-limit",
			Usage:   "max Bot API requests per second",
			Value:   25,
			EnvVars: []string{"WARDEN_TELEGRAM_RATE_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		logger := cliutil.ConfigLogger(cctx, os.Stdout)

		shutdownOTEL, err := configOTEL(ctx, "warden")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		if cctx.Int64("operator-id") <= 0 {
			return fmt.Errorf("invalid operator id: must be a positive account id")
		}
		operator := event.SenderID(cctx.Int64("operator-id"))

		srv, err := NewServer(Config{
			Logger:              logger,
			TelegramHost:        cctx.String("telegram-api-host"),
			TelegramToken:       cctx.String("telegram-token"),
			TelegramRateLimit:   cctx.Float64("telegram-rate-limit"),
			OperatorID:          operator,
			RecordStoreURL:      cctx.String("record-store"),
			RedisURL:            cctx.String("redis-url"),
			MaxDBConnections:    cctx.Int("max-metadb-connections"),
			DBTracing:           cctx.Bool("db-tracing"),
			ModerateGroups:      cctx.Bool("moderate-groups"),
			ReplyUnauthorized:   cctx.Bool("reply-unauthorized"),
			DeleteBanned:        cctx.Bool("delete-banned"),
			ForwardFirstContact: cctx.Bool("forward-first-contact"),
			CommandPrefixes:     splitPrefixes(cctx.String("command-prefixes")),
			MaxWarnings:         cctx.Int("max-warnings"),
			SlackWebhookURL:     cctx.String("slack-webhook-url"),
			Bind:                cctx.String("bind"),
			Workers:             cctx.Int("workers"),
		})
		if err != nil {
			return err
		}
		defer srv.Close()

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run warden service: %w", err)
		}
		return nil
	},
}

func splitPrefixes(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
