// digits: draw or upload a digit in the browser and see what the model thinks
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-digits/internal/config"
	"github.com/teslashibe/go-digits/internal/log"
	"github.com/teslashibe/go-digits/pkg/capture"
	"github.com/teslashibe/go-digits/pkg/predict"
	"github.com/teslashibe/go-digits/pkg/raster"
	"github.com/teslashibe/go-digits/pkg/session"
	"github.com/teslashibe/go-digits/pkg/web"
)

var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "digits:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("digits", os.Args[1:])
	if err != nil {
		return err
	}

	log.Init(cfg.LogLevel, cfg.LogFormat)
	logger := log.L()

	resampler, err := raster.ParseResampler(cfg.Resampler)
	if err != nil {
		return err
	}

	client, err := predict.NewClient(
		predict.WithBaseURL(cfg.PredictorURL),
		predict.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	surface := capture.New(
		capture.WithResampler(resampler),
		capture.WithMaxUploadBytes(cfg.MaxUploadBytes),
		capture.WithLogger(logger),
	)
	sess := session.New(client, session.WithLogger(logger))

	srv := web.NewServer(web.Config{
		Addr:           ":" + cfg.Port,
		PublicURL:      cfg.Resolved(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Debug:          cfg.Debug,
		Version:        version,
	}, surface, sess, client, logger)

	fmt.Println()
	fmt.Println("✏️  Digits v" + version)
	fmt.Println("   UI:        " + cfg.Resolved())
	fmt.Println("   Predictor: " + client.BaseURL())
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting", "version", version, "addr", ":"+cfg.Port, "predictor", client.BaseURL())
	err = srv.Run(ctx)
	if err != nil {
		log.Error("server stopped", "error", err)
	}

	// Let an in-flight prediction settle before exiting.
	sess.Wait()
	log.Info("stopped")
	return err
}
