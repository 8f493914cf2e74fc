package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/ttsd/internal/config"
	"github.com/ekisa-team/ttsd/internal/service"
)

type synthFlags struct {
	text     string
	speaker  string
	language string
	model    string
	output   string
	bark     bool
}

func newSynthCmd(root *rootFlags) *cobra.Command {
	flags := &synthFlags{}

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to a WAV file without starting a server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAndValidate(root.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config %s: %w", root.configPath, err)
			}

			rt := newRuntime(cmd.Context(), cfg, runtimeOptions{})
			defer rt.Close()

			var res *service.SynthesisResult
			if flags.bark {
				res, err = rt.bark.Synthesize(cmd.Context(), flags.text)
			} else {
				res, err = rt.tts.Synthesize(cmd.Context(), service.SynthesisRequest{
					Text:       flags.text,
					SpeakerID:  flags.speaker,
					LanguageID: flags.language,
					ModelID:    flags.model,
				})
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(flags.output, res.Audio, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", flags.output, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %.2fs at %d Hz (model=%s speaker=%s)\n",
				flags.output, res.Duration.Seconds(), res.SampleRate, res.Model, res.Speaker)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.text, "text", "t", "", "Text to synthesize")
	f.StringVarP(&flags.speaker, "speaker", "s", "", "Speaker id (defaults to the first speaker)")
	f.StringVar(&flags.language, "language", "", "Language id")
	f.StringVarP(&flags.model, "model", "m", "", "Model id (defaults to the service default)")
	f.StringVarP(&flags.output, "output", "o", "tts_output.wav", "Output WAV file")
	f.BoolVar(&flags.bark, "bark", false, "Use the bark pipeline")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}
