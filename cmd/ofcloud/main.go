package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jimmicro/version"
	"github.com/rs/zerolog/log"

	"github.com/jimyag/ofcloud/internal/ofcloud"
	"github.com/jimyag/ofcloud/internal/ofcloud/config"
	"github.com/jimyag/ofcloud/internal/ofcloud/daemon"
)

const usage = `usage: ofcloud <command> [-config path]

commands:
  run      run in foreground
  start    start as a background daemon
  stop     stop the background daemon
  restart  stop then start the background daemon
  version  print build information
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]
	if command == "version" {
		fmt.Println(version.Version())
		return
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("OFCLOUD_CONFIG"), "path of the yaml config file")
	_ = fs.Parse(os.Args[2:])

	logger := ofcloud.NewLogger()
	ctx := logger.WithContext(context.Background())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	switch command {
	case "run":
		server, err := ofcloud.New(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create server")
		}
		if err := server.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to run server")
		}
	case "start", "stop", "restart":
		supervisor, err := newSupervisor(cfg, *configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to locate executable")
		}
		switch command {
		case "start":
			_, err = supervisor.Start(ctx)
		case "stop":
			err = supervisor.Stop(ctx)
		default:
			_, err = supervisor.Restart(ctx)
		}
		if err != nil {
			log.Fatal().Err(err).Str("command", command).Msg("Daemon command failed")
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func newSupervisor(cfg *config.Config, configPath string) (*daemon.Supervisor, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	var args []string
	if configPath != "" {
		args = append(args, "-config", configPath)
	}
	return daemon.NewSupervisor(cfg.Daemon, exe, args), nil
}
