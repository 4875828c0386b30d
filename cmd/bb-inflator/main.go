package main

import (
	"os"

	"bbinflator/internal/app"
	"bbinflator/internal/cli"
	"bbinflator/internal/pkg/errs"
	"bbinflator/internal/pkg/output"
)

func main() {
	ctx, stop := cli.SignalContext()
	printer := output.NewPrinter()
	err := cli.NewInflatorCommand(printer, app.NewBackends).ExecuteContext(ctx)
	stop()
	if err != nil {
		printer.Failure("Error: %v", err)
		os.Exit(errs.ExitCode(err))
	}
}
