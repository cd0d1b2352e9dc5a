package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/siegeai/canary/assets"
	"github.com/siegeai/canary/faults"
	"github.com/siegeai/canary/logging"
	"github.com/siegeai/canary/server"
	"github.com/siegeai/canary/smoke"
	"github.com/spf13/cobra"
)

// set with -ldflags "-X main.version=..."
var version = "0.1.0"

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "canary",
		Short:        "HTTP demo service for deployment and alarm checks",
		Long:         `canary serves a few static routes plus endpoints that burn CPU or memory on request, so health checks, load balancer targets and resource alarms can be exercised end to end.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         runServe,
	}

	f := root.Flags()
	f.String("host", getEnv("CANARY_HOST", ""), "Host to listen on")
	f.Int("port", getEnvInt("CANARY_PORT", 5000), "Port to listen on")
	f.String("images-dir", getEnv("CANARY_IMAGES", assets.DefaultDir), "Directory holding the served images")
	f.Int("stress-iterations", getEnvInt("CANARY_STRESS_ITERATIONS", faults.DefaultIterations), "Hash rounds per /stress-test request")
	f.Bool("enable-faults", getEnvBool("CANARY_ENABLE_FAULTS", true), "Register /infinite-loop and /memory-bomb")

	pf := root.PersistentFlags()
	pf.String("log-level", getEnv("CANARY_LOG", "info"), "debug, info, warn or error")
	pf.String("log-file", getEnv("CANARY_LOG_FILE", logging.DefaultFile), "Rotating log file, empty to log to stdout only")

	root.AddCommand(newSmokeCmd())
	return root
}

func newSmokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Check the bounded routes of a running canary",
		RunE:  runSmoke,
	}
	cmd.Flags().String("url", getEnv("CANARY_URL", "http://localhost:5000"), "Base URL of the canary")
	cmd.Flags().Duration("timeout", 10*time.Second, "Per-request timeout")
	cmd.Flags().Bool("stress", false, "Also run /stress-test")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	imagesDir, _ := cmd.Flags().GetString("images-dir")
	iterations, _ := cmd.Flags().GetInt("stress-iterations")
	enableFaults, _ := cmd.Flags().GetBool("enable-faults")

	logger, closer, err := setupLogging(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	accounts := assets.AccountsFromEnv()
	s := server.New(server.Config{
		ImagesDir:        imagesDir,
		Accounts:         accounts,
		StressIterations: iterations,
		EnableFaults:     enableFaults,
		Version:          version,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", host, port)
	logger.Info("Starting canary", "addr", addr, "version", version, "faults", enableFaults)
	logger.Info("Environment loaded", "host", accounts.Host)

	if err := s.Run(ctx, addr); err != nil {
		logger.Error("Failed to start application", "err", err)
		return err
	}
	return nil
}

func runSmoke(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	stress, _ := cmd.Flags().GetBool("stress")

	logger, closer, err := setupLogging(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	paths := smoke.DefaultPaths
	if stress {
		paths = append(paths[:len(paths):len(paths)], "/stress-test")
	}

	_, err = smoke.NewChecker(url, timeout, logger).Run(cmd.Context(), paths)
	return err
}

func setupLogging(cmd *cobra.Command) (*slog.Logger, io.Closer, error) {
	level, _ := cmd.Flags().GetString("log-level")
	file, _ := cmd.Flags().GetString("log-file")
	return logging.New(logging.Options{Level: level, File: file})
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return fallback
}
