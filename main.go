package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"github.com/xeptore/zotify/config"
	"github.com/xeptore/zotify/constant"
	"github.com/xeptore/zotify/log"
	"github.com/xeptore/zotify/report"
	"github.com/xeptore/zotify/spotify/session"
)

func main() {
	logger := log.NewDefault()

	//nolint:exhaustruct
	app := &cli.Command{
		Name:    "zotify",
		Version: constant.Version,
		Metadata: map[string]any{
			"compiled_at": constant.CompileTime,
		},
		Suggest:                    true,
		Usage:                      "Bulk music and podcast downloader",
		ArgsUsage:                  "[references...]",
		EnableShellCompletion:      true,
		ShellCompletionCommandName: "shell-completion",
		AllowExtFlags:              false,
		Flags:                      append(selectionFlags(), overrideFlags()...),
		Action:                     download,
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:   "logout",
				Usage:  "Forget stored login credentials",
				Action: logout,
			},
			//nolint:exhaustruct
			{
				Name:   "drivers",
				Usage:  "List available protocol drivers",
				Action: listDrivers,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			os.Exit(1)
		}

		var exitCode exitCodeError
		if errors.As(err, &exitCode) {
			os.Exit(int(exitCode))
		}

		logger.Error().Err(err).Msg("Application exited with error")
		os.Exit(10)
	}
}

type exitCodeError int

func (e exitCodeError) Error() string {
	return "error with exit code: " + strconv.Itoa(int(e))
}

const (
	exitFatalFailures exitCodeError = 1
	exitResolution    exitCodeError = 2
	exitLogin         exitCodeError = 3
)

func setup(cmd *cli.Command) (zerolog.Logger, *config.Config, error) {
	logger := log.NewDefault()

	if err := godotenv.Load(); nil != err {
		if !errors.Is(err, os.ErrNotExist) {
			return logger, nil, fmt.Errorf("load .env file: %v", err)
		}
		logger.Debug().Msg(".env file was not found")
	} else {
		logger.Debug().Msg(".env file was loaded")
	}

	conf, err := config.Load(cmd.String("config"), overrides(cmd))
	if nil != err {
		return logger, nil, fmt.Errorf("load config: %v", err)
	}

	logger = log.FromConfig(conf.Log)

	logger.Debug().Dict("config", conf.ToDict()).Msg("Config loaded")

	return logger, conf, nil
}

func openSession(ctx context.Context, logger zerolog.Logger, conf *config.Config) (*session.Session, error) {
	protocol, err := session.NewProtocol(logger, conf.Session)
	if nil != err {
		if errors.Is(err, session.ErrDriverNotFound) {
			logger.
				Error().
				Err(err).
				Strs("available", session.Drivers()).
				Msg("Protocol driver is not available. Please set protocol_driver to one of the available drivers.")

			return nil, exitLogin
		}

		logger.Error().Err(err).Msg("Failed to create protocol driver")

		return nil, exitLogin
	}

	s, err := session.Open(ctx, logger, conf, protocol)
	if nil != err {
		if errors.Is(err, session.ErrLogin) {
			logger.Error().Err(err).Msg("Login failed")
			return nil, exitLogin
		}

		if errors.Is(err, syscall.ENOTTY) {
			logger.Error().Msg("No TTY detected. Please run in an interactive terminal or use stored credentials.")
			return nil, exitLogin
		}

		return nil, fmt.Errorf("open session: %w", err)
	}

	return s, nil
}

func download(ctx context.Context, cmd *cli.Command) (err error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, conf, err := setup(cmd)
	if nil != err {
		return err
	}

	s, err := openSession(ctx, logger, conf)
	if nil != err {
		return err
	}
	defer func() {
		if closeErr := s.Close(); nil != closeErr {
			logger.Error().Err(closeErr).Msg("Failed to close session")
		}
	}()

	u := &unresolved{logger: logger, errs: nil}
	collections, err := collect(ctx, logger, cmd, s, u)
	if nil != err {
		return fmt.Errorf("collect references: %w", err)
	}

	if len(collections) == 0 {
		logger.Warn().Msg("There is nothing to do")
		return u.exitCode(false)
	}

	total, unique := countItems(collections)
	logger.Info().Int("collections", len(collections)).Int("items", total).Int("unique_items", unique).Msg("References resolved")

	opts := report.OptionsFor(os.Stdout, lo.FromPtr(conf.Download.PrintSkips))

	if cmd.Bool("dry-run") {
		summary, err := s.Plan(ctx, collections)
		if nil != err {
			return fmt.Errorf("plan downloads: %w", err)
		}
		report.Plan(os.Stdout, summary, opts)

		if err := report.Summary(os.Stdout, summary, opts); nil != err {
			return err
		}

		return u.exitCode(false)
	}

	summary, err := s.Run(ctx, collections)
	if nil != err {
		return fmt.Errorf("run downloads: %w", err)
	}
	logger.Info().Dict("summary", summary.ToDict()).Msg("Downloads finished")

	if err := report.Summary(os.Stdout, summary, opts); nil != err {
		return err
	}

	if err := ctx.Err(); nil != err {
		return err
	}

	return u.exitCode(summary.HasFatal())
}

func logout(ctx context.Context, cmd *cli.Command) error {
	_, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, conf, err := setup(cmd)
	if nil != err {
		return err
	}

	store, err := session.OpenCredentialStore(conf.Session.CredentialsPath)
	if nil != err {
		return fmt.Errorf("open credential store: %v", err)
	}
	defer func() {
		if err := store.Close(); nil != err {
			logger.Error().Err(err).Msg("Failed to close credential store")
		}
	}()

	creds, err := store.Load(conf.Session.Username)
	if nil != err {
		return fmt.Errorf("load credentials: %v", err)
	}

	if nil == creds {
		logger.Warn().Msg("No stored credentials found. Set username if several accounts are stored.")
		return nil
	}

	if err := store.Delete(creds.Username); nil != err {
		return fmt.Errorf("delete credentials: %v", err)
	}
	logger.Info().Str("username", creds.Username).Msg("Stored credentials were removed")

	return nil
}

func listDrivers(_ context.Context, _ *cli.Command) error {
	for _, name := range session.Drivers() {
		fmt.Fprintln(os.Stdout, name)
	}

	return nil
}
