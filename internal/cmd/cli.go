package cmd

import "github.com/Alia5/lt3/internal/log"

// CLI is the root kong command tree.
type CLI struct {
	Config string     `help:"Path to a configuration file (json, yaml or toml)" type:"path" env:"LT3_CONFIG"`
	Log    log.Config `embed:"" prefix:"log."`

	Run     Run           `cmd:"" help:"Run the keyboard and export it over USB-IP"`
	Keymap  Keymap        `cmd:"" help:"Print the compiled layer table"`
	Service Service       `cmd:"" help:"Manage the systemd service"`
	Cfg     ConfigCommand `cmd:"" name:"config" help:"Configuration helpers"`
}
