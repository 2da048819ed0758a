// Package cost prices LLM token usage per provider and model.
package cost

import (
	"strings"

	"github.com/sells-group/reengage-cli/internal/config"
	"github.com/sells-group/reengage-cli/internal/model"
)

// Providers recorded on model.TokenUsage.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds per-provider pricing configuration.
type Rates struct {
	OpenAI map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
	Gemini map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
}

// RatesFromConfig converts configured pricing into Rates.
func RatesFromConfig(p config.PricingConfig) Rates {
	conv := func(in map[string]config.ModelPricing) map[string]ModelRate {
		out := make(map[string]ModelRate, len(in))
		for name, r := range in {
			out[name] = ModelRate{Input: r.Input, Output: r.Output}
		}
		return out
	}
	return Rates{OpenAI: conv(p.OpenAI), Gemini: conv(p.Gemini)}
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// OpenAI computes the cost of an assistant run.
func (c *Calculator) OpenAI(modelName string, input, output int) float64 {
	return price(c.rates.OpenAI, modelName, input, output)
}

// Gemini computes the cost of a generateContent call.
func (c *Calculator) Gemini(modelName string, input, output int) float64 {
	return price(c.rates.Gemini, modelName, input, output)
}

// Usage prices u by its provider. Unknown providers and models cost 0.
func (c *Calculator) Usage(u model.TokenUsage) float64 {
	switch u.Provider {
	case ProviderOpenAI:
		return c.OpenAI(u.Model, u.InputTokens, u.OutputTokens)
	case ProviderGemini:
		return c.Gemini(u.Model, u.InputTokens, u.OutputTokens)
	}
	return 0
}

// price matches the longest configured name that prefixes modelName, so
// dated snapshots like "gpt-4o-2024-08-06" use the "gpt-4o" rate.
func price(rates map[string]ModelRate, modelName string, input, output int) float64 {
	rate, ok := rates[modelName]
	if !ok {
		best := ""
		for name, r := range rates {
			if strings.HasPrefix(modelName, name) && len(name) > len(best) {
				best, rate = name, r
			}
		}
		if best == "" {
			return 0
		}
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		OpenAI: map[string]ModelRate{
			"gpt-4o":      {Input: 2.50, Output: 10.00},
			"gpt-4o-mini": {Input: 0.15, Output: 0.60},
			"gpt-4.1":     {Input: 2.00, Output: 8.00},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
		},
	}
}
