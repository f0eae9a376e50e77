package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/effects"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/emotion"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/engine"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/profile"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/transform"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

// profileFlags binds the profile fields a user can set. Only flags that were
// given end up in the update.
type profileFlags struct {
	name, gender, language, accent, age, emotion string
	pitch, speed, volume                         float64
	breathiness, roughness                       float64
}

func (f *profileFlags) register(fs *pflag.FlagSet, withName bool) {
	if withName {
		fs.StringVar(&f.name, "name", "", "profile name")
	}
	fs.StringVar(&f.gender, "gender", "", "male|female|neutral|custom")
	fs.Float64Var(&f.pitch, "pitch", 0, "pitch shift in semitones (-12..12)")
	fs.Float64Var(&f.speed, "speed", 1, "speaking rate multiplier (0.5..2.0)")
	fs.Float64Var(&f.volume, "volume", 1, "gain multiplier (0.0..2.0)")
	fs.StringVar(&f.language, "language", "", "language tag, e.g. en-US")
	fs.StringVar(&f.accent, "accent", "", "accent name")
	fs.StringVar(&f.age, "age", "", "child|young|adult|elderly")
	fs.StringVar(&f.emotion, "emotion", "", "default emotion")
	fs.Float64Var(&f.breathiness, "breathiness", 0, "timbre breathiness (0..1)")
	fs.Float64Var(&f.roughness, "roughness", 0, "timbre roughness (0..1)")
}

func (f *profileFlags) update(fs *pflag.FlagSet) voice.ProfileUpdate {
	var u voice.ProfileUpdate
	if fs.Changed("name") {
		u.Name = voice.Ptr(f.name)
	}
	if fs.Changed("gender") {
		u.Gender = voice.Ptr(voice.Gender(strings.ToLower(f.gender)))
	}
	if fs.Changed("pitch") {
		u.Pitch = voice.Ptr(f.pitch)
	}
	if fs.Changed("speed") {
		u.Speed = voice.Ptr(f.speed)
	}
	if fs.Changed("volume") {
		u.Volume = voice.Ptr(f.volume)
	}
	if fs.Changed("language") {
		u.Language = voice.Ptr(f.language)
	}
	if fs.Changed("accent") {
		u.Accent = voice.Ptr(f.accent)
	}
	if fs.Changed("age") {
		u.AgeRange = voice.Ptr(voice.AgeRange(strings.ToLower(f.age)))
	}
	if fs.Changed("emotion") {
		u.EmotionDefault = voice.Ptr(voice.Emotion(strings.ToLower(f.emotion)))
	}
	if fs.Changed("breathiness") || fs.Changed("roughness") {
		u.Timbre = map[string]float64{}
		if fs.Changed("breathiness") {
			u.Timbre[engine.TimbreBreathiness] = f.breathiness
		}
		if fs.Changed("roughness") {
			u.Timbre[engine.TimbreRoughness] = f.roughness
		}
	}
	return u
}

func (a *app) presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List voice, effect and transform presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, titleStyle.Render("Voice presets"))
			for _, name := range a.voices.PresetList() {
				p, err := profile.Preset(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "  %-20s %s\n", name, dimStyle.Render(fmt.Sprintf("%s, pitch %+.1f, speed %.2f", p.Gender, p.Pitch, p.Speed)))
			}
			fmt.Fprintln(w, titleStyle.Render("Effect presets"))
			fmt.Fprintln(w, "  "+strings.Join(effects.PresetNames(), ", "))
			fmt.Fprintln(w, titleStyle.Render("Transform presets"))
			fmt.Fprintln(w, "  "+strings.Join(transform.PresetNames(), ", "))
			return nil
		},
	}
}

func (a *app) emotionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emotions",
		Short: "List supported emotions and their full-intensity prosody",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, titleStyle.Render("Emotions"))
			for _, e := range emotion.ListEmotions() {
				m, _ := emotion.Lookup(e)
				fmt.Fprintf(w, "  %-12s %s\n", e, dimStyle.Render(fmt.Sprintf(
					"pitch %+.1f, speed x%.2f, volume x%.2f, variance x%.1f", m.Pitch, m.Speed, m.Volume, m.Variance)))
			}
			return nil
		},
	}
}

func (a *app) createCmd() *cobra.Command {
	var (
		flags  profileFlags
		preset string
	)
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create and save a custom voice profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.voices.CreateCustomVoice(args[0], preset, flags.update(cmd.Flags()))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, successStyle.Render("✓ Voice profile created"))
			printProfile(w, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "start from this voice preset")
	flags.register(cmd.Flags(), false)
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved voice profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.voices.SavedProfiles()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(w, dimStyle.Render("No saved profiles. Create one with 'voicekit create [name]'"))
				return nil
			}
			fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d saved profiles", len(list))))
			for _, s := range list {
				fmt.Fprintf(w, "  %s  %-24s %s\n", dimStyle.Render(s.ProfileID), s.Name,
					dimStyle.Render(fmt.Sprintf("%s %s", s.Gender, s.Language)))
			}
			return nil
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [profile-id]",
		Short: "Show a saved voice profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.voices.LoadSavedProfile(args[0])
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	var flags profileFlags
	cmd := &cobra.Command{
		Use:   "update [profile-id]",
		Short: "Change fields of a saved voice profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := flags.update(cmd.Flags())
			if u.IsEmpty() {
				return fmt.Errorf("nothing to update: pass at least one field flag")
			}
			p, err := a.voices.UpdateSavedProfile(args[0], u)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, successStyle.Render("✓ Updated "+strings.Join(u.Fields(), ", ")))
			printProfile(w, p)
			return nil
		},
	}
	flags.register(cmd.Flags(), true)
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [profile-id]",
		Short: "Delete a saved voice profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.voices.DeleteSavedProfile(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ Deleted "+args[0]))
			return nil
		},
	}
}

func printProfile(w io.Writer, p voice.VoiceProfile) {
	printField(w, "ID", dimStyle.Render(p.ProfileID))
	printField(w, "Name", p.Name)
	printField(w, "Gender", p.Gender)
	printField(w, "Pitch", fmt.Sprintf("%+.1f", p.Pitch))
	printField(w, "Speed", fmt.Sprintf("%.2f", p.Speed))
	printField(w, "Volume", fmt.Sprintf("%.2f", p.Volume))
	printField(w, "Language", p.Language)
	printField(w, "Accent", p.Accent)
	printField(w, "Age", p.AgeRange)
	printField(w, "Emotion", p.EmotionDefault)
	if len(p.Timbre) > 0 {
		printField(w, "Timbre", p.Timbre)
	}
}
