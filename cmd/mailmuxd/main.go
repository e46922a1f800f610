// mailmuxd maintains long-lived IMAP connections to the configured mail
// servers, watches mailboxes for changes, and serves mailbox operations
// over a local JSON-RPC socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/nhle/mailmux/internal/config"
	"github.com/nhle/mailmux/internal/credential"
	"github.com/nhle/mailmux/internal/daemon"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mailmuxd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to the configuration file")
	logLevel := flag.String("log-level", "", "log level (trace, debug, info, warn, error); overrides the configured level")
	pidFile := flag.String("pid-file", "", "write the daemon pid to this file")
	jsonLog := flag.Bool("json-log", false, "emit JSON log lines instead of console output")
	flag.Parse()

	log := newLogger(*jsonLog)
	applyLogLevel(*configPath, *logLevel)

	if *pidFile != "" {
		if err := writePIDFile(*pidFile); err != nil {
			return err
		}
		defer os.Remove(*pidFile)
	}

	store, err := credential.Open()
	if err != nil {
		return err
	}

	d := daemon.New(*configPath, store, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	go func() {
		for sig := range sigc {
			switch sig {
			case syscall.SIGHUP:
				log.Info().Msg("received SIGHUP, reloading")
				if err := d.Reload(ctx); err != nil {
					log.Error().Err(err).Msg("reload failed")
				}
			default:
				log.Info().Str("signal", sig.String()).Msg("received termination signal")
				d.Shutdown()
			}
		}
	}()

	return d.Run(ctx)
}

func newLogger(jsonLog bool) zerolog.Logger {
	if jsonLog {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).With().Timestamp().Logger()
}

// applyLogLevel picks the effective level: the flag wins, then the
// configured level, then info. Config load errors are ignored here;
// Run reports them properly.
func applyLogLevel(configPath, flagLevel string) {
	level := flagLevel
	if level == "" {
		if cfg, err := config.Load(configPath); err == nil {
			level = cfg.LogLevel
		}
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func writePIDFile(path string) error {
	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(pid), 0o644); err != nil {
		return fmt.Errorf("writing pid file %s: %w", path, err)
	}
	return nil
}
