package main

import (
	"os"

	"bbinflator/internal/cli"
)

func main() {
	ctx, stop := cli.SignalContext()
	err := cli.Component(ctx, os.Args[1:], os.Stdout)
	stop()
	cli.Exit(err)
}
