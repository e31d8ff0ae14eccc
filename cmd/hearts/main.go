package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Server   ServerCmd        `cmd:"" help:"Run the realm with its websocket bridge"`
	Simulate SimulateCmd      `cmd:"" help:"Play bot games through the full event pipeline"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("hearts"),
		kong.Description("Multi-game Hearts server driven by versioned events"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
