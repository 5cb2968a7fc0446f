package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/GriffinCanCode/spectra/internal/pipeline"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit status. Every
// deferred cleanup, including the final log flush, has finished by the time
// it returns.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	// Errors returned before any command runs come from resolving the
	// command line: unknown commands and rejected positional arguments.
	resolved := false
	root.PersistentPreRun = func(*cobra.Command, []string) {
		resolved = true
	}

	err := root.ExecuteContext(ctx)
	var phaseErr *pipeline.PhaseError
	if err != nil && !resolved && !errors.As(err, &phaseErr) {
		err = &pipeline.PhaseError{Phase: pipeline.PhaseArgs, Err: err}
	}
	if err != nil {
		fmt.Fprintf(stderr, "spectra: %v\n", err)
	}
	return pipeline.ExitCode(err)
}
