// Package voice defines the schema layer shared by every voice customization
// component: enumerations, voice profiles, effect and transform records, the
// audio/text envelopes passed between components, and the error model.
package voice

// Gender is the perceived gender of a voice.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"
	GenderCustom  Gender = "custom"
)

// IsValid reports whether g is a recognised gender.
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderNeutral, GenderCustom:
		return true
	}
	return false
}

// Emotion is an emotional tone applied to speech.
type Emotion string

const (
	EmotionNeutral   Emotion = "neutral"
	EmotionHappy     Emotion = "happy"
	EmotionSad       Emotion = "sad"
	EmotionAngry     Emotion = "angry"
	EmotionExcited   Emotion = "excited"
	EmotionCalm      Emotion = "calm"
	EmotionFearful   Emotion = "fearful"
	EmotionConfident Emotion = "confident"
)

var emotions = []Emotion{
	EmotionNeutral,
	EmotionHappy,
	EmotionSad,
	EmotionAngry,
	EmotionExcited,
	EmotionCalm,
	EmotionFearful,
	EmotionConfident,
}

// Emotions returns every known emotion in declaration order.
func Emotions() []Emotion {
	out := make([]Emotion, len(emotions))
	copy(out, emotions)
	return out
}

// IsValid reports whether e is a recognised emotion.
func (e Emotion) IsValid() bool {
	for _, known := range emotions {
		if e == known {
			return true
		}
	}
	return false
}

// AudioEffect names an effect the effects component knows how to stamp.
type AudioEffect string

const (
	EffectReverb      AudioEffect = "reverb"
	EffectEcho        AudioEffect = "echo"
	EffectChorus      AudioEffect = "chorus"
	EffectDistortion  AudioEffect = "distortion"
	EffectEqualizer   AudioEffect = "equalizer"
	EffectCompressor  AudioEffect = "compressor"
	EffectNoiseGate   AudioEffect = "noise_gate"
	EffectPitchShift  AudioEffect = "pitch_shift"
	EffectTimeStretch AudioEffect = "time_stretch"
)

// IsValid reports whether a is a recognised audio effect.
func (a AudioEffect) IsValid() bool {
	switch a {
	case EffectReverb, EffectEcho, EffectChorus, EffectDistortion, EffectEqualizer,
		EffectCompressor, EffectNoiseGate, EffectPitchShift, EffectTimeStretch:
		return true
	}
	return false
}

// AgeRange is the approximate age a voice should sound like.
type AgeRange string

const (
	AgeChild   AgeRange = "child"
	AgeYoung   AgeRange = "young"
	AgeAdult   AgeRange = "adult"
	AgeElderly AgeRange = "elderly"
)

// IsValid reports whether a is a recognised age range.
func (a AgeRange) IsValid() bool {
	switch a {
	case AgeChild, AgeYoung, AgeAdult, AgeElderly:
		return true
	}
	return false
}
