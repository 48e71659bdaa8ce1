package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/vm799/trust-by-design-sub003/internal/api"
	"github.com/vm799/trust-by-design-sub003/internal/serverdb"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	// Route to admin subcommands if present
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		runAdmin(os.Args[2:])
		return
	}

	v := loadViper()
	setupLogging(v)

	store, err := serverdb.Open(v.GetString("db_path"))
	if err != nil {
		slog.Error("open server db", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	cfg := api.Config{
		ListenAddr:    v.GetString("listen_addr"),
		MaxBodyBytes:  v.GetInt64("max_body_bytes"),
		RateLimitPush: v.GetInt("rate_limit_push"),
		RateLimitPull: v.GetInt("rate_limit_pull"),
	}
	srv := api.NewServer(cfg, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		slog.Error("start server", "err", err)
		os.Exit(1)
	}
	slog.Info("server started", "addr", cfg.ListenAddr, "db", v.GetString("db_path"))

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), v.GetDuration("shutdown_timeout"))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

// loadViper reads tbd-server.yaml (working directory or /etc/tbd) and the
// TBD_SERVER_* environment, with sane defaults for everything.
func loadViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("tbd-server")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tbd")

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", "./data/server.db")
	v.SetDefault("max_body_bytes", 1<<20)
	v.SetDefault("rate_limit_push", 120)
	v.SetDefault("rate_limit_pull", 240)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 5)
	v.SetDefault("log_max_age_days", 30)

	v.SetEnvPrefix("TBD_SERVER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("read config", "err", err)
			os.Exit(1)
		}
	}
	return v
}

// setupLogging points slog at stderr or a rotating file.
func setupLogging(v *viper.Viper) {
	var level slog.Level
	switch strings.ToLower(v.GetString("log_level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if path := v.GetString("log_file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    v.GetInt("log_max_size_mb"),
			MaxBackups: v.GetInt("log_max_backups"),
			MaxAge:     v.GetInt("log_max_age_days"),
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(v.GetString("log_format")) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}
