package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"wavebuoy/internal/config"
	"wavebuoy/internal/web"
)

func main() {
	var configPath string
	var summarizePath string
	var analyzePath string
	var depth float64
	var declination float64
	var byteOrder string
	flag.StringVar(&configPath, "config", "./wavebuoy.yaml", "Path to YAML config")
	flag.StringVar(&summarizePath, "summarize", "", "Print a summary of a capture log and exit")
	flag.StringVar(&analyzePath, "analyze", "", "Analyse one raw frame file, print the result as JSON and exit")
	flag.Float64Var(&depth, "depth", 0, "Water depth in metres for -analyze (0 = deep water)")
	flag.Float64Var(&declination, "declination", 0, "Magnetic declination in degrees for -analyze")
	flag.StringVar(&byteOrder, "byte-order", "little", "Frame byte order for -analyze and -summarize: little or big")
	flag.Parse()

	if summarizePath != "" {
		if err := printLogSummary(os.Stdout, summarizePath, byteOrder); err != nil {
			log.Fatalf("summarize failed: %v", err)
		}
		return
	}
	if analyzePath != "" {
		if err := runAnalyze(os.Stdout, analyzePath, byteOrder, depth, declination); err != nil {
			log.Fatalf("analyze failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, logs)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer rt.Close()

	log.Printf("wavebuoy starting")
	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("wavebuoy stopped: %v", err)
		rt.Close()
		os.Exit(1)
	}
	log.Printf("wavebuoy stopping")
}
