package chat

// ModelName identifies a backend model.
type ModelName struct {
	Shortname string `json:"shortname"`
	Fullname  string `json:"fullname"`
}

// ModelParams are the generation knobs a user can tune.
type ModelParams struct {
	OutputLength      float64 `json:"outputLength"`
	Temperature       float64 `json:"temperature"`
	TopK              float64 `json:"topK"`
	TopP              float64 `json:"topP"`
	RepetitionPenalty float64 `json:"repetitionPenalty"`
}

// DefaultModelParams returns the parameters used before the backend's
// model descriptors are loaded.
func DefaultModelParams() ModelParams {
	return ModelParams{
		OutputLength:      256,
		Temperature:       1,
		TopK:              40,
		TopP:              1,
		RepetitionPenalty: 1,
	}
}

// AsMap returns the params in the opaque form carried by a ChatRequest.
func (p ModelParams) AsMap() map[string]any {
	return map[string]any{
		"outputLength":      p.OutputLength,
		"temperature":       p.Temperature,
		"topK":              p.TopK,
		"topP":              p.TopP,
		"repetitionPenalty": p.RepetitionPenalty,
	}
}

// ParamRange is the schema of a single tunable parameter.
type ParamRange struct {
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Clamp bounds v to the range.
func (r ParamRange) Clamp(v float64) float64 {
	if r.Max < r.Min {
		return v
	}
	return min(max(v, r.Min), r.Max)
}

// ParamSchema describes every tunable parameter of a model.
type ParamSchema struct {
	OutputLength      ParamRange `json:"outputLength"`
	Temperature       ParamRange `json:"temperature"`
	TopK              ParamRange `json:"topK"`
	TopP              ParamRange `json:"topP"`
	RepetitionPenalty ParamRange `json:"repetitionPenalty"`
}

// Defaults returns the default value of every parameter.
func (s ParamSchema) Defaults() ModelParams {
	return ModelParams{
		OutputLength:      s.OutputLength.Default,
		Temperature:       s.Temperature.Default,
		TopK:              s.TopK.Default,
		TopP:              s.TopP.Default,
		RepetitionPenalty: s.RepetitionPenalty.Default,
	}
}

// Clamp bounds every parameter in p to the schema.
func (s ParamSchema) Clamp(p ModelParams) ModelParams {
	return ModelParams{
		OutputLength:      s.OutputLength.Clamp(p.OutputLength),
		Temperature:       s.Temperature.Clamp(p.Temperature),
		TopK:              s.TopK.Clamp(p.TopK),
		TopP:              s.TopP.Clamp(p.TopP),
		RepetitionPenalty: s.RepetitionPenalty.Clamp(p.RepetitionPenalty),
	}
}

// ModelDescriptor is one entry of the backend's model catalogue.
type ModelDescriptor struct {
	ID        int64       `json:"id"`
	Shortname string      `json:"shortname"`
	Fullname  string      `json:"fullname"`
	Params    ParamSchema `json:"params"`
}

// Name returns the descriptor's model name.
func (d ModelDescriptor) Name() ModelName {
	return ModelName{Shortname: d.Shortname, Fullname: d.Fullname}
}
