// Command home-monitor-tool is a maintenance CLI for the reading store and
// the MQTT feed. It reads the same environment as the service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/wyolum/home-monitor/internal/config"
	"github.com/wyolum/home-monitor/internal/db"
	"github.com/wyolum/home-monitor/internal/logging"
	"github.com/wyolum/home-monitor/internal/modules/airquality/repository"
	"github.com/wyolum/home-monitor/internal/mqtt"
)

const appName = "home-monitor-tool"

var version = "dev"

const usage = `usage: %s <command>
  migrate      apply pending schema migrations
  tail [n]     print the n most recent readings as JSON (default 10)
  publish      publish the JSON state payload read from stdin
`

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg, version, appName)

	if err := run(context.Background(), cfg, logger, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf(usage, appName)
	}

	switch args[0] {
	case "migrate":
		return withRepository(cfg, logger, func(repo repository.ReadingRepository) error {
			if err := repo.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			_, err := fmt.Fprintln(stdout, "migrations applied")
			return err
		})
	case "tail":
		n := 10
		if len(args) > 1 {
			v, err := strconv.Atoi(args[1])
			if err != nil || v < 0 {
				return fmt.Errorf("tail: invalid count %q", args[1])
			}
			n = v
		}
		return withRepository(cfg, logger, func(repo repository.ReadingRepository) error {
			readings, err := repo.Tail(ctx, n)
			if err != nil {
				return fmt.Errorf("tail: %w", err)
			}
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(readings)
		})
	case "publish":
		payload, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("publish: read stdin: %w", err)
		}
		return publish(ctx, cfg, logger, payload)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func withRepository(cfg config.Config, logger *slog.Logger, fn func(repository.ReadingRepository) error) error {
	conn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()
	return fn(repository.NewRepository(conn, logger))
}

func publish(ctx context.Context, cfg config.Config, logger *slog.Logger, payload []byte) error {
	pub, err := mqtt.NewPublisher(cfg, logger)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	defer pub.Disconnect()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pub.Connect(connectCtx); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := pub.PublishRaw(payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	logger.Info("published state", "topic", cfg.MQTTTopic, "size", len(payload))
	return nil
}
