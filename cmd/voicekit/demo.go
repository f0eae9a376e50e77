package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/effects"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/engine"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/speech"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const demoText = "Hello! This is a demonstration of the voice customization engine."

// demoCmd walks through preset loading, custom voice creation and a few
// emotion and effect renders.
func (a *app) demoCmd() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a walkthrough of presets, custom voices, emotions and effects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, titleStyle.Render("Voice customization demo"))

			fmt.Fprintln(w, titleStyle.Render("1. Presets"))
			for _, name := range a.voices.PresetList() {
				fmt.Fprintln(w, "  • "+name)
			}

			fmt.Fprintln(w, titleStyle.Render("2. Custom voice"))
			p, err := a.voices.CreateCustomVoice("Demo Voice", "professional_female", voice.ProfileUpdate{
				Pitch:          voice.Ptr(1.5),
				EmotionDefault: voice.Ptr(voice.EmotionConfident),
			})
			if err != nil {
				return err
			}
			if !keep {
				defer a.voices.DeleteSavedProfile(p.ProfileID)
			}
			printProfile(w, p)

			audio, err := speech.NewMockSynthesizer(a.rec).Synthesize(cmd.Context(), voice.NewText(demoText),
				speech.SynthesisOptions{Engine: a.cfg.TTSEngine})
			if err != nil {
				return err
			}

			fmt.Fprintln(w, titleStyle.Render("3. Emotions"))
			for _, em := range []voice.Emotion{voice.EmotionHappy, voice.EmotionSad, voice.EmotionExcited} {
				res, err := a.voices.ApplyVoiceProfile(audio, p, engine.ApplyOptions{
					Emotion:   em,
					Intensity: voice.Ptr(0.8),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "  %-10s %s\n", em, dimStyle.Render(fmt.Sprintf("pitch %+.2f, speed %.2f, volume %.2f, %.2fs",
					res.Transform.PitchShift, *res.Prosody.FinalSpeed, *res.Prosody.FinalVolume, res.Audio.Duration)))
			}

			fmt.Fprintln(w, titleStyle.Render("4. Effects"))
			chain := []voice.EffectConfig{effects.Reverb(0.4, 0.5), effects.Echo(250, 0.2), effects.Compressor(-18, 4)}
			res, err := a.voices.ApplyVoiceProfile(audio, p, engine.ApplyOptions{Effects: chain})
			if err != nil {
				return err
			}
			printRender(w, p, res)

			fmt.Fprintln(w, successStyle.Render("✓ Demo complete"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the demo profile in storage")
	return cmd
}
