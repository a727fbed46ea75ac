package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"os"
	"time"

	"github.com/joho/godotenv"

	"dealflow/db"
	"dealflow/deal"
	"dealflow/digest"
	"dealflow/dispute"
	"dealflow/notify"
	"dealflow/reminder"
)

// The engine runs one job per invocation and exits; an external cron decides
// the cadence (scan hourly, digest daily).
func main() {
	job := flag.String("job", "", "job to run: scan | digest")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), *job); err != nil {
		slog.Error("engine run failed", "job", *job, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, job string) error {
	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	directory := notify.NewDirectory(pool)
	dispatcher := notify.NewDispatcher(notify.NewSink(pool), directory, mailerFromEnv())

	dealRepo := deal.NewRepository(pool)
	disputeRepo := dispute.NewRepository(pool)

	now := time.Now().UTC()

	switch job {
	case "scan":
		scanner := reminder.NewScanner(dealRepo, disputeRepo, reminder.NewLedger(pool), dispatcher)
		rep, err := scanner.Run(ctx, now)
		slog.Info("deadline scan finished",
			"dispatched", rep.Dispatched, "skipped", rep.Skipped, "failed", rep.Failed)
		return err
	case "digest":
		agg := digest.NewAggregator(directory, dealRepo, disputeRepo, dispatcher)
		rep, err := agg.Run(ctx, now)
		slog.Info("daily digest finished",
			"users", rep.Users, "sent", rep.Sent, "suppressed", rep.Suppressed, "failed", rep.Failed)
		return err
	default:
		return fmt.Errorf("unknown job %q (want scan or digest)", job)
	}
}

func mailerFromEnv() notify.Mailer {
	addr := os.Getenv("SMTP_ADDR")
	from := os.Getenv("SMTP_FROM")
	if addr == "" || from == "" {
		return notify.LogMailer{}
	}

	var auth smtp.Auth
	if user := os.Getenv("SMTP_USER"); user != "" {
		host := addr
		if h, _, err := net.SplitHostPort(addr); err == nil {
			host = h
		}
		auth = smtp.PlainAuth("", user, os.Getenv("SMTP_PASSWORD"), host)
	}
	return notify.NewSMTPMailer(addr, from, auth)
}
