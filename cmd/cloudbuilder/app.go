package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eugenetaranov/cloudbuilder/internal/config"
	"github.com/eugenetaranov/cloudbuilder/internal/connector/ssh"
	"github.com/eugenetaranov/cloudbuilder/internal/logger"
	"github.com/eugenetaranov/cloudbuilder/internal/output"
	"github.com/eugenetaranov/cloudbuilder/internal/provision"
	"github.com/eugenetaranov/cloudbuilder/internal/runner"
	"github.com/eugenetaranov/cloudbuilder/internal/transfer"
)

// defaultLogLevel keeps stderr quiet unless asked otherwise.
const defaultLogLevel = "warn"

// app bundles what the commands share.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	runner *runner.Exec
}

func newOutput(w io.Writer) *output.Output {
	o := output.New(w)
	o.SetColor(!noColor)
	o.SetDebug(debug)
	return o
}

func logLevel(configured string) string {
	switch {
	case debug:
		return "debug"
	case configured != "":
		return configured
	default:
		return defaultLogLevel
	}
}

// newApp resolves the configuration from flags, project file and environment.
func newApp() (*app, error) {
	boot := logger.New(os.Stderr, logLevel(os.Getenv("LOG_LEVEL")), !noColor)

	cfg, err := config.Load(config.Config{
		RemoteHostName: remoteName,
		RcloneExePath:  rclonePath,
		RcloneConfig:   rcloneConfig,
		ProjectPath:    projectPath,
	}, config.WithLogger(boot.With("config")))
	if err != nil {
		return nil, err
	}

	log := logger.New(os.Stderr, logLevel(cfg.LogLevel), !noColor)
	return &app{
		cfg:    cfg,
		log:    log,
		runner: runner.New(runner.WithLogger(log.With("runner"))),
	}, nil
}

func (a *app) provisioner() (*provision.Provisioner, error) {
	if err := a.cfg.RequireRemote(); err != nil {
		return nil, err
	}
	return provision.New(a.runner, a.cfg.RcloneExePath, a.cfg.RemoteHostName,
		provision.WithConfig(a.cfg.RcloneConfig),
		provision.WithLogger(a.log.With("provision"))), nil
}

func (a *app) transfer() (*transfer.Client, error) {
	return transfer.New(a.runner, transfer.Options{
		Executable: a.cfg.RcloneExePath,
		Remote:     a.cfg.RemoteHostName,
		LocalPath:  a.cfg.LocalPath,
		RemotePath: a.cfg.RemotePath,
		Config:     a.cfg.RcloneConfig,
		Logger:     a.log.With("transfer"),
	})
}

// connect opens an SSH connection to the build host of the configured remote.
func (a *app) connect(ctx context.Context, workdir string) (*ssh.Connector, error) {
	target, err := a.cfg.Target()
	if err != nil {
		return nil, err
	}

	conn := ssh.New(target, ssh.WithWorkdir(workdir), ssh.WithLogger(a.log.With("ssh")))
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", conn, err)
	}
	return conn, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
