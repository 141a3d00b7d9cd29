package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pjbroadbent/layouts-service/internal/api"
	"github.com/pjbroadbent/layouts-service/internal/config"
	"github.com/pjbroadbent/layouts-service/internal/engine"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "layouts-service",
		Short: "Desktop window layout service",
		Long:  "Snap, tab and group desktop windows as the user drags them",
		Run:   runService,
	}

	rootCmd.Flags().String("config", "", "config file (default is $HOME/.layouts-service.yaml)")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("bind-addr", ":8085", "HTTP server bind address")
	rootCmd.Flags().String("manifest", "", "configuration rules manifest to load and watch")
	rootCmd.Flags().Float64("snap-radius", 30, "snap attraction radius in pixels")
	rootCmd.Flags().Float64("min-overlap", 30, "minimum edge overlap in pixels")
	rootCmd.Flags().Int("preview-pool", 3, "pre-allocated drag preview surfaces")

	viper.BindPFlags(rootCmd.Flags())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runService(cmd *cobra.Command, args []string) {
	initConfig()
	logger := initLogger()
	ctx := context.Background()

	logger.WithFields(logrus.Fields{
		"version":    Version,
		"commit":     Commit,
		"build_time": BuildTime,
	}).Info("Starting layouts service")

	// The window-runtime adapter is provided by the host environment; the
	// in-memory runtime stands in so the service runs self-contained.
	rt := runtime.NewFake(logger)

	store := config.NewStore(logger)
	loader := config.NewLoader(store, logger)
	if manifest := viper.GetString("manifest"); manifest != "" {
		if err := loader.LoadFile(ctx, manifest); err != nil {
			logger.WithError(err).Fatal("Failed to load configuration manifest")
		}
		if err := loader.WatchFile(ctx, manifest); err != nil {
			logger.WithError(err).Warn("Manifest watching unavailable")
		}
		defer loader.Close()
	}

	cfg := engine.DefaultConfig()
	cfg.Snap.Radius = viper.GetFloat64("snap-radius")
	cfg.Snap.MinOverlap = viper.GetFloat64("min-overlap")
	cfg.PreviewPoolSize = viper.GetInt("preview-pool")

	metrics := engine.NewMetrics(prometheus.DefaultRegisterer)
	preview, err := engine.NewPreviewPool(ctx, rt, cfg.PreviewPoolSize, "", logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to allocate preview pool")
	}

	eng := engine.New(logger, cfg, rt, store, preview, metrics)
	if err := eng.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start layout engine")
	}

	hub := api.NewEventHub(eng, logger)
	handler := api.NewHandler(eng, hub, logger)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/health", handleHealth).Methods("GET")
	handler.RegisterRoutes(router.PathPrefix("/api/v1").Subrouter())

	server := &http.Server{
		Addr:         viper.GetString("bind-addr"),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Client API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Client API server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down layouts service")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Engine shutdown failed")
	}
	logger.Info("Layouts service stopped")
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".layouts-service")
		}
	}
	viper.SetEnvPrefix("LAYOUTS")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func initLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Debug("Request handled")
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy","service":"layouts-service","version":%q}`, Version)
}
