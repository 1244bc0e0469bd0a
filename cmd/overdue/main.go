// Command overdue runs one overdue sweep and publishes the report. It is meant
// to be started daily by an external scheduler.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/rl1809/car-sharing/internal/adapter/notify"
	"github.com/rl1809/car-sharing/internal/adapter/storage"
	"github.com/rl1809/car-sharing/internal/config"
	"github.com/rl1809/car-sharing/internal/core/service"
	"github.com/rl1809/car-sharing/internal/port"
)

func main() {
	date := flag.String("date", "", "sweep date as YYYY-MM-DD, defaults to today (UTC)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	today := time.Now().UTC()
	if *date != "" {
		d, err := time.Parse("2006-01-02", *date)
		if err != nil {
			log.Error("invalid -date", "value", *date, "err", err)
			os.Exit(2)
		}
		today = d
	}

	cfg, err := config.LoadJob()
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if cfg.MySQLDSN == "" {
		log.Error("required env missing", "key", "MYSQL_DSN")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := storage.OpenMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Error("failed to open mysql", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to ping mysql", "err", err)
		os.Exit(1)
	}

	var notifier port.Notifier = notify.NewLogNotifier(log)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	dispatcher := service.NewDispatcher(notifier, 1, service.WithLogger(log))
	sweep := service.NewOverdueSweep(storage.NewMySQLAdapter(db), dispatcher, service.WithLogger(log))

	report, err := sweep.Run(ctx, today)
	dispatcher.Close()
	dispatcher.Run(1)
	if err != nil {
		log.Error("overdue sweep failed", "err", err)
		os.Exit(1)
	}
	log.Info("overdue report sent", "date", report.Date.Format("2006-01-02"), "overdue", len(report.Rentals))
}
