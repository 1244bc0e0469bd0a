package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage selects the backends. Empty values fall back to in-process ones.
type Storage struct {
	// MySQLDSN empty selects the in-memory store.
	MySQLDSN string
	// RedisAddr empty selects the in-process payment lock.
	RedisAddr string
}

type Notifications struct {
	// KafkaBrokers empty logs notifications instead of publishing them.
	KafkaBrokers    []string
	KafkaTopic      string
	NotifyWorkers   int
	NotifyQueueSize int
}

type Payments struct {
	StripeSecretKey string
	PublicBaseURL   string
	Currency        string
	ProviderTimeout time.Duration
	PaymentLockTTL  time.Duration
}

// Job is what batch commands need: storage and notifications, no payments.
type Job struct {
	Storage
	Notifications
}

type App struct {
	HTTPAddr string
	GRPCAddr string

	Storage
	Notifications
	Payments
}

// Load reads the server configuration. STRIPE_SECRET_KEY is required.
func Load() (App, error) {
	job, err := LoadJob()
	if err != nil {
		return App{}, err
	}
	payments, err := loadPayments()
	if err != nil {
		return App{}, err
	}
	return App{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:      getenv("GRPC_ADDR", ":9090"),
		Storage:       job.Storage,
		Notifications: job.Notifications,
		Payments:      payments,
	}, nil
}

func LoadJob() (Job, error) {
	cfg := Job{
		Storage: Storage{
			MySQLDSN:  os.Getenv("MYSQL_DSN"),
			RedisAddr: os.Getenv("REDIS_ADDR"),
		},
		Notifications: Notifications{
			KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:   getenv("KAFKA_TOPIC", "carshare.notifications"),
		},
	}

	var err error
	if cfg.NotifyWorkers, err = getInt("NOTIFY_WORKERS", 4); err != nil {
		return Job{}, err
	}
	if cfg.NotifyQueueSize, err = getInt("NOTIFY_QUEUE_SIZE", 1000); err != nil {
		return Job{}, err
	}
	return cfg, nil
}

func loadPayments() (Payments, error) {
	cfg := Payments{
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		PublicBaseURL:   getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		Currency:        getenv("CURRENCY", "usd"),
	}

	var err error
	if cfg.ProviderTimeout, err = getDuration("PROVIDER_TIMEOUT", 10*time.Second); err != nil {
		return Payments{}, err
	}
	if cfg.PaymentLockTTL, err = getDuration("PAYMENT_LOCK_TTL", 30*time.Second); err != nil {
		return Payments{}, err
	}

	if cfg.StripeSecretKey == "" {
		return Payments{}, fmt.Errorf("required env missing: STRIPE_SECRET_KEY")
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("env %s: want a positive integer, got %q", k, v)
	}
	return n, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("env %s: want a positive duration, got %q", k, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
