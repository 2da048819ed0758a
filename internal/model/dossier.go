package model

// TokenUsage tracks LLM token consumption for one call or an aggregate.
type TokenUsage struct {
	Provider     string  `json:"provider,omitempty"`
	Model        string  `json:"model,omitempty"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// StrategicDossier is the analyst's reading of the deal's meeting notes.
type StrategicDossier struct {
	Text  string     `json:"text"`
	Usage TokenUsage `json:"-"`
}

// Insight is one externally sourced finding.
type Insight struct {
	Content string  `json:"conteudo"`
	Source  string  `json:"fonte"`
	Link    *string `json:"link"`
}

// ResearchDossier is the researcher's structured output.
type ResearchDossier struct {
	Insights []Insight  `json:"insights"`
	Summary  string     `json:"resumo_executivo"`
	Usage    TokenUsage `json:"-"`
}

// Email is a generated cadence email.
type Email struct {
	Title    string     `json:"title"`
	Body     string     `json:"body"`
	Strategy string     `json:"strategy"`
	Usage    TokenUsage `json:"-"`
}
