package main

import (
	"io"
	"os"
	"strings"

	"github.com/Alia5/lt3/internal/cmd"
	"github.com/Alia5/lt3/internal/configpaths"
	"github.com/Alia5/lt3/internal/log"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
)

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	var cli cmd.CLI
	ctx := kong.Parse(&cli,
		kong.Name("lt3"),
		kong.Description("LT-3 keyboard firmware, exported over USB-IP"),
		kong.UsageOnError(),
		// Load configuration from JSON/YAML/TOML in priority order; flags/env override config values.
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closeFiles, err := log.SetupLogger(cli.Log.Level, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	rawLogger, rawFile := log.SetupRawLogger(cli.Log, logger)
	if rawFile != nil {
		closeFiles = append(closeFiles, rawFile)
	}
	defer closeAll(closeFiles)

	ctx.Bind(logger)
	ctx.BindTo(rawLogger, (*log.RawLogger)(nil))

	err = ctx.Run()
	if err != nil {
		closeAll(closeFiles)
	}
	ctx.FatalIfErrorf(err)
}

func closeAll(files []io.Closer) {
	for _, c := range files {
		_ = c.Close()
	}
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v := os.Getenv("LT3_CONFIG"); v != "" {
		return v
	}
	return ""
}
