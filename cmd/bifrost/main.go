// bifrost is the signaling relay: it hands every websocket client an id
// and forwards call-setup messages between them.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"fjarsyn/internal/logging"
	"fjarsyn/internal/relay"
	"fjarsyn/models"
)

var log = logging.New("bifrost")

func main() {
	cfg := models.DefaultRelayConfig()
	if v := os.Getenv("BIFROST_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("BIFROST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	flag.StringVarP(&cfg.Addr, "addr", "a", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace, debug, info, warn, error or disabled")
	flag.Parse()

	if !logging.SetLevel(cfg.LogLevel) {
		fmt.Fprintf(os.Stderr, "unknown log level %q\n", cfg.LogLevel)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("⚠️  Shutting down...")
		cancel()
	}()

	srv := relay.NewServer()
	if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("❌ %v", err)
		os.Exit(1)
	}
	log.Infof("✅ Done!")
}
