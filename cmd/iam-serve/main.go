// Command iam-serve runs the handwriting recognition HTTP API. It stems
// uploaded paragraph images, forwards them to an external model endpoint
// and renders the predicted label indices as text.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkstone/handwriting-pipeline/internal/charmap"
	"github.com/inkstone/handwriting-pipeline/internal/dataset"
	"github.com/inkstone/handwriting-pipeline/internal/recognizer"
	"github.com/inkstone/handwriting-pipeline/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("iam-serve %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		}
	}

	var (
		addr         = flag.String("addr", ":8080", "listen address")
		modelURL     = flag.String("model-url", "", "model prediction endpoint (required)")
		modelToken   = flag.String("model-token", "", "bearer token for the model endpoint")
		modelTimeout = flag.Duration("model-timeout", 30*time.Second, "model request timeout")
		inputHeight  = flag.Int("input-height", dataset.DefaultImageHeight, "model input canvas height")
		inputWidth   = flag.Int("input-width", dataset.DefaultImageWidth, "model input canvas width")
		scaleFactor  = flag.Int("scale-factor", dataset.DefaultScaleFactor, "stem downsampling factor")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *modelURL == "" {
		logger.Error("missing required flag -model-url")
		os.Exit(1)
	}

	model, err := recognizer.NewHTTPModel(*modelURL, *modelToken, *modelTimeout)
	if err != nil {
		logger.Error("bad model configuration", "error", err)
		os.Exit(1)
	}
	rec, err := recognizer.New(model, charmap.New(), *inputHeight, *inputWidth, *scaleFactor)
	if err != nil {
		logger.Error("failed to build recognizer", "error", err)
		os.Exit(1)
	}
	srv := server.New(rec, server.Config{Logger: logger})

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", *addr, "model_url", *modelURL, "version", Version)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}
}
