package backend

// Params are the sampling knobs sent with a generation request. Zero values
// mean "provider default"; presets always set every field explicitly.
type Params struct {
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	PresencePenalty  float64  `json:"presence_penalty"`
	MaxTokens        int      `json:"max_tokens"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
}

// Named presets tuned per task. Chapter prose wants moderate temperature with
// a strong repetition penalty; character work runs hotter; plot outlining
// runs cooler and barely penalizes repetition (structural text repeats
// labels).
const (
	PresetCreativeWriting   = "creative-writing"
	PresetCharacterCreation = "character-creation"
	PresetPlotDevelopment   = "plot-development"
)

var presets = map[string]Params{
	PresetCreativeWriting: {
		Temperature:      0.7,
		TopP:             0.9,
		FrequencyPenalty: 0.6,
		PresencePenalty:  0.4,
	},
	PresetCharacterCreation: {
		Temperature:      0.85,
		TopP:             0.85,
		FrequencyPenalty: 0.4,
		PresencePenalty:  0.3,
	},
	PresetPlotDevelopment: {
		Temperature:      0.75,
		TopP:             0.9,
		FrequencyPenalty: 0.25,
		PresencePenalty:  0.15,
	},
}

// ParamsFor returns the named preset, falling back to creative-writing for
// unknown names. MaxTokens is left zero; callers set it per request.
func ParamsFor(preset string) Params {
	if p, ok := presets[preset]; ok {
		return p
	}
	return presets[PresetCreativeWriting]
}

// WithMaxTokens returns a copy with the output budget set.
func (p Params) WithMaxTokens(n int) Params {
	p.MaxTokens = n
	return p
}

// WithTemperature returns a copy with the temperature overridden.
func (p Params) WithTemperature(t float64) Params {
	p.Temperature = t
	return p
}

// WithStopSequences returns a copy with the stop sequences set.
func (p Params) WithStopSequences(stop ...string) Params {
	p.StopSequences = stop
	return p
}
