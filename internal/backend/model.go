package backend

// ModelLocator is an optional interface for backends that can locate
// the actual model file to load or execute.
type ModelLocator interface {
	// ResolveModelPath resolves the real model path inside the base downloaded directory.
	ResolveModelPath(basePath string, params map[string]any) (string, error)
}

// VoiceInspector is an optional interface for backends that can describe a model's voice
// without running inference.
type VoiceInspector interface {
	// Inspect reads the voice metadata that accompanies the model at modelPath.
	Inspect(modelPath string) (*VoiceInfo, error)
}

// Speaker is a named voice identity of a multi-speaker model.
type Speaker struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// VoiceInfo describes a loaded model's voice.
type VoiceInfo struct {
	// SampleRate is the rate of the waveform the model produces.
	SampleRate int `json:"sample_rate"`

	// Language is the model's language code, if known.
	Language string `json:"language,omitempty"`

	// Speakers is the speaker registry ordered by index. Nil when the model
	// has no speaker support.
	Speakers []Speaker `json:"speakers,omitempty"`
}

// MultiSpeaker reports whether the model exposes a speaker registry.
func (v *VoiceInfo) MultiSpeaker() bool {
	return v != nil && v.Speakers != nil
}

// Speaker looks up a speaker by name.
func (v *VoiceInfo) Speaker(name string) (Speaker, bool) {
	if v == nil {
		return Speaker{}, false
	}
	for _, s := range v.Speakers {
		if s.Name == name {
			return s, true
		}
	}
	return Speaker{}, false
}

// SpeakerNames returns the registry keys in registry order.
func (v *VoiceInfo) SpeakerNames() []string {
	if v == nil {
		return nil
	}
	names := make([]string, len(v.Speakers))
	for i, s := range v.Speakers {
		names[i] = s.Name
	}
	return names
}
