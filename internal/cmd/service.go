package cmd

import "log/slog"

type Service struct {
	Install   ServiceInstall   `cmd:"" help:"Install and start lt3 as a systemd service on the gpio board"`
	Uninstall ServiceUninstall `cmd:"" help:"Stop and remove the systemd service"`
}

type ServiceInstall struct {
	Args []string `arg:"" optional:"" passthrough:"" help:"Extra flags appended to the run command line"`
}

func (s *ServiceInstall) Run(logger *slog.Logger) error {
	return install(logger, s.Args)
}

type ServiceUninstall struct{}

func (s *ServiceUninstall) Run(logger *slog.Logger) error {
	return uninstall(logger)
}
