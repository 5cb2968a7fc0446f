package main

import (
	"fmt"

	"github.com/GriffinCanCode/spectra/internal/pipeline"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "spectra",
		Short: "Real-time audio spectrum analyzer",
		Long: `Spectra captures PCM samples, transforms fixed windows into magnitude
spectra and publishes the latest spectrum over HTTP and WebSocket.

Samples flow through two bounded buffer pools. When a consumer falls
behind, frames are dropped rather than queued, and a watchdog logs which
stage is too slow.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &pipeline.PhaseError{Phase: pipeline.PhaseArgs, Err: err}
	})
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("spectra version %s\n", version))

	root.AddCommand(newRunCmd(), newSourcesCmd())
	return root
}
