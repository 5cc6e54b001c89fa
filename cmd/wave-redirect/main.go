package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"wavebuoy/internal/config"
	"wavebuoy/internal/redirect"
)

func main() {
	var configPath, listen, upstream string
	flag.StringVar(&configPath, "config", "", "Optional wavebuoy YAML config; its redirect section supplies defaults")
	flag.StringVar(&listen, "listen", "", "HTTP listen address (default :8081)")
	flag.StringVar(&upstream, "upstream", "", "Upstream base URL, e.g. http://buoy.local:8080")
	flag.Parse()

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
		if listen == "" {
			listen = cfg.Redirect.Listen
		}
		if upstream == "" {
			upstream = cfg.Redirect.Upstream
		}
	}
	if listen == "" {
		listen = ":8081"
	}
	if upstream == "" {
		log.Fatalf("-upstream is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("wave-redirect: %s -> %s", listen, upstream)
	if err := redirect.Serve(ctx, listen, upstream); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("wave-redirect: %v", err)
	}
}
