package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/ttsd/internal/config"
)

func newSpeakersCmd(root *rootFlags) *cobra.Command {
	var modelID string

	cmd := &cobra.Command{
		Use:   "speakers",
		Short: "List the speakers of a TTS model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAndValidate(root.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config %s: %w", root.configPath, err)
			}

			rt := newRuntime(cmd.Context(), cfg, runtimeOptions{})
			defer rt.Close()

			speakers, multi, err := rt.tts.Speakers(modelID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !multi {
				fmt.Fprintln(out, "single-speaker model")
				return nil
			}
			for _, s := range speakers {
				fmt.Fprintln(out, s)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelID, "model", "m", "", "Model id (defaults to the tts service default)")

	return cmd
}
