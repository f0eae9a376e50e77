package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/audiofile"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/effects"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/engine"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/speech"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/textnorm"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/transform"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

// renderFlags select the voice a render uses.
type renderFlags struct {
	profileID string
	preset    string
	emotion   string
	intensity float64
	effects   string
	transform string
	output    string
	overwrite bool
}

func (f *renderFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.profileID, "profile", "", "saved profile id")
	fs.StringVar(&f.preset, "preset", "", "voice preset (used when --profile is empty or missing)")
	fs.StringVar(&f.emotion, "emotion", "", "emotion override (default: the profile's)")
	fs.Float64Var(&f.intensity, "intensity", engine.DefaultIntensity, "emotion intensity (0..1)")
	fs.StringVar(&f.effects, "effects", "", "effect chain, e.g. reverb:0.7,echo")
	fs.StringVar(&f.transform, "transform", "", "transform preset ("+strings.Join(transform.PresetNames(), "|")+")")
	fs.StringVarP(&f.output, "output", "o", "", "write the rendered audio to this file")
	fs.BoolVar(&f.overwrite, "overwrite", false, "replace an existing output file")
}

func (a *app) render(f *renderFlags, fs *pflag.FlagSet, audio voice.AudioData) (engine.Result, voice.VoiceProfile, error) {
	preset := f.preset
	if preset == "" {
		preset = a.cfg.DefaultPreset
	}
	p, err := a.voices.ResolveProfile(f.profileID, preset)
	if err != nil {
		return engine.Result{}, voice.VoiceProfile{}, err
	}
	chain, err := effects.ParseChain(f.effects)
	if err != nil {
		return engine.Result{}, voice.VoiceProfile{}, err
	}
	opts := engine.ApplyOptions{
		Emotion: voice.Emotion(strings.ToLower(f.emotion)),
		Effects: chain,
	}
	if f.transform != "" {
		tr, err := transform.Preset(strings.ToLower(f.transform))
		if err != nil {
			return engine.Result{}, voice.VoiceProfile{}, err
		}
		opts.Transform = &tr
	}
	switch {
	case fs.Changed("intensity"):
		opts.Intensity = voice.Ptr(f.intensity)
	case a.cfg.EmotionIntensity != nil:
		opts.Intensity = a.cfg.EmotionIntensity
	}
	res, err := a.voices.ApplyVoiceProfile(audio, p, opts)
	return res, p, err
}

// writeOutput stores audio at path, rooted at the path's directory.
func (a *app) writeOutput(path string, audio voice.AudioData, overwrite bool) (audiofile.WriteResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return audiofile.WriteResult{}, err
	}
	w, err := audiofile.NewWriter(filepath.Dir(abs), a.rec)
	if err != nil {
		return audiofile.WriteResult{}, err
	}
	return w.Write(audio, filepath.Base(abs), overwrite)
}

func printRender(w io.Writer, p voice.VoiceProfile, res engine.Result) {
	printField(w, "Profile", fmt.Sprintf("%s %s", p.Name, dimStyle.Render(p.ProfileID)))
	printField(w, "Emotion", fmt.Sprintf("%s @ %.2f", res.Prosody.Emotion, res.Prosody.Intensity))
	printField(w, "Pitch", fmt.Sprintf("%+.2f", res.Transform.PitchShift))
	printField(w, "Speed", fmt.Sprintf("%.2f", *res.Prosody.FinalSpeed))
	printField(w, "Volume", fmt.Sprintf("%.2f", *res.Prosody.FinalVolume))
	names := make([]string, len(res.Effects))
	for i, e := range res.Effects {
		names[i] = string(e.Type)
	}
	if len(names) > 0 {
		printField(w, "Effects", strings.Join(names, " → "))
	}
	printField(w, "Duration", fmt.Sprintf("%.2fs", res.Audio.Duration))
	printField(w, "Size", fmt.Sprintf("%d bytes", len(res.Audio.Bytes)))
}

func (a *app) applyCmd() *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "apply [audio-file]",
		Short: "Render an audio file with a voice profile, emotion and effects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := audiofile.NewLoader(a.rec).Load(args[0])
			if err != nil {
				return err
			}
			res, p, err := a.render(&f, cmd.Flags(), audio)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, successStyle.Render("✓ Rendered "+filepath.Base(args[0])))
			printRender(w, p, res)
			if f.output != "" {
				out, err := a.writeOutput(f.output, res.Audio, f.overwrite)
				if err != nil {
					return err
				}
				printField(w, "Written", out.FilePath)
			}
			return nil
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func (a *app) speakCmd() *cobra.Command {
	var (
		f      renderFlags
		ttsEng string
		speed  float64
	)
	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Synthesize text and render it with a voice profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttsEng == "" {
				ttsEng = a.cfg.TTSEngine
			}
			text, err := textnorm.NewNormalizer(a.rec).Normalize(strings.Join(args, " "), textnorm.DefaultOptions())
			if err != nil {
				return err
			}
			audio, err := speech.NewMockSynthesizer(a.rec).Synthesize(cmd.Context(), text,
				speech.SynthesisOptions{Engine: ttsEng, Speed: speed})
			if err != nil {
				return err
			}
			res, p, err := a.render(&f, cmd.Flags(), audio)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("✓ Spoke %d characters with %s", utf8.RuneCountInString(text.Text), ttsEng)))
			printRender(w, p, res)
			if f.output != "" {
				out, err := a.writeOutput(f.output, res.Audio, f.overwrite)
				if err != nil {
					return err
				}
				printField(w, "Written", out.FilePath)
			}
			return nil
		},
	}
	f.register(cmd.Flags())
	cmd.Flags().StringVar(&ttsEng, "engine", "", "TTS engine ("+strings.Join(speech.TTSEngines(), "|")+")")
	cmd.Flags().Float64Var(&speed, "rate", 1.0, "synthesis rate before the profile is applied")
	return cmd
}

func (a *app) transcribeCmd() *cobra.Command {
	var sttEng, language string
	cmd := &cobra.Command{
		Use:   "transcribe [audio-file]",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sttEng == "" {
				sttEng = a.cfg.STTEngine
			}
			audio, err := audiofile.NewLoader(a.rec).Load(args[0])
			if err != nil {
				return err
			}
			text, err := speech.NewMockRecognizer(a.rec).Recognize(cmd.Context(), audio,
				speech.RecognitionOptions{Engine: sttEng, Language: language})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, text.Text)
			printField(w, "Confidence", fmt.Sprintf("%.2f", text.Confidence))
			printField(w, "Language", text.Language)
			return nil
		},
	}
	cmd.Flags().StringVar(&sttEng, "engine", "", "STT engine ("+strings.Join(speech.STTEngines(), "|")+")")
	cmd.Flags().StringVar(&language, "language", voice.DefaultLanguage, "expected language")
	return cmd
}

func (a *app) normalizeCmd() *cobra.Command {
	opts := textnorm.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "normalize [text]",
		Short: "Normalize text before synthesis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := textnorm.NewNormalizer(a.rec).Normalize(strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text.Text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.RemovePunctuation, "strip-punctuation", false, "remove ASCII punctuation")
	cmd.Flags().BoolVar(&opts.Lowercase, "lowercase", false, "lowercase the text")
	cmd.Flags().BoolVar(&opts.StripWhitespace, "collapse-whitespace", true, "collapse runs of whitespace")
	return cmd
}
