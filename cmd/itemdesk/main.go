// Command itemdesk is a terminal line-item editor backed by the stockmaster
// product listing.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stockmaster/backend/internal/logger"
	"stockmaster/backend/internal/search"
)

func main() {
	_ = godotenv.Load()

	var (
		server    = flag.String("server", envOr("STOCKMASTER_URL", "http://127.0.0.1:8080"), "backend base URL")
		username  = flag.String("user", envOr("STOCKMASTER_USER", "clerk"), "login username")
		password  = flag.String("password", os.Getenv("STOCKMASTER_PASSWORD"), "login password")
		expiry    = flag.Bool("expiry", false, "add an expiry-date column")
		priceFrom = flag.String("price", "cost", "price seeded into new rows: cost or sell")
		debounce  = flag.Duration("debounce", search.DefaultDebounce, "search debounce")
	)
	flag.Parse()

	log := logger.NewWithWriter(os.Stderr, envOr("APP_ENV", "prod"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	client := search.NewClient(*server, search.WithHTTPClient(httpClient))
	if _, err := client.Login(ctx, *username, *password); err != nil {
		log.Error("login failed", "server", *server, "user", *username, "error", err)
		os.Exit(1)
	}

	d := newDesk(ctx, os.Stdout, client, httpSubmitter{
		baseURL:    strings.TrimRight(*server, "/"),
		httpClient: httpClient,
		token:      client.Token,
	}, deskOptions{
		HasExpiry:  *expiry,
		PriceField: *priceFrom,
		Debounce:   *debounce,
		Logger:     log,
	})
	defer d.Close()

	d.out.printf("logged in as %s, type help for commands\n", *username)
	if err := d.run(ctx, os.Stdin); err != nil {
		log.Error("input error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
