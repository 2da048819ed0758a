package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reengage-cli/internal/cost"
	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/pkg/gemini"
)

const researchFormat = "\n\nRealize a pesquisa solicitada e estruture os resultados de forma clara e organizada.\n\n" +
	"IMPORTANTE: Retorne APENAS um JSON válido no seguinte formato:\n" +
	"{\n  \"insights\": [\n    {\n      \"conteudo\": \"descrição detalhada do insight\",\n" +
	"      \"fonte\": \"nome da fonte (ex: McKinsey, BCG, etc.)\",\n      \"link\": \"URL completa da fonte\"\n    }\n  ],\n" +
	"  \"resumo_executivo\": \"resumo dos principais achados e relevância para o cliente\"\n}"

// Researcher gathers external market insights through search-grounded Gemini.
type Researcher struct {
	client      gemini.Client
	model       string
	temperature float32
}

// NewResearcher creates a Researcher. An empty model uses the client default.
func NewResearcher(client gemini.Client, modelName string, temperature float32) *Researcher {
	return &Researcher{client: client, model: modelName, temperature: temperature}
}

// Research runs instruction for the deal described by profile. The strategic
// dossier, when present, is added as meeting context.
func (r *Researcher) Research(ctx context.Context, instruction string, profile model.Profile, systemPrompt string, dossier *model.StrategicDossier) (*model.ResearchDossier, error) {
	temp := r.temperature
	resp, err := r.client.Generate(ctx, gemini.Request{
		Model:             r.model,
		SystemInstruction: systemPrompt,
		Prompt:            researchPrompt(instruction, profile, dossier),
		Temperature:       &temp,
		GoogleSearch:      true,
	})
	if err != nil {
		return nil, err
	}

	out, err := parseResearch(resp.Text)
	if err != nil {
		zap.L().Warn("agent: unparseable research response", zap.String("raw", resp.Text), zap.Error(err))
		return nil, err
	}
	out.Usage = model.TokenUsage{
		Provider:     cost.ProviderGemini,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}

	log := zap.L().With(zap.Int("insights", len(out.Insights)), zap.Strings("grounding_sources", resp.Sources))
	if len(resp.Sources) == 0 {
		log.Debug("agent: research returned no grounding sources")
	} else if links := ungroundedLinks(out.Insights, resp.Sources); len(links) > 0 {
		log.Info("agent: research links missing from grounding sources", zap.Strings("links", links))
	} else {
		log.Debug("agent: research grounded")
	}
	return out, nil
}

// ungroundedLinks returns the insight links that no grounding source names.
func ungroundedLinks(insights []model.Insight, sources []string) []string {
	known := make(map[string]bool, len(sources))
	for _, s := range sources {
		known[strings.TrimRight(s, "/")] = true
	}
	var out []string
	for _, in := range insights {
		if in.Link == nil {
			continue
		}
		if !known[strings.TrimRight(*in.Link, "/")] {
			out = append(out, *in.Link)
		}
	}
	return out
}

func researchPrompt(instruction string, profile model.Profile, dossier *model.StrategicDossier) string {
	var b strings.Builder
	b.WriteString("Instrução de Pesquisa: ")
	b.WriteString(instruction)
	b.WriteString("\n\nContexto do Cliente:\n- Setor: ")
	b.WriteString(profile.Get(model.ProfileSector))
	b.WriteString("\n- Desafio Principal: ")
	b.WriteString(profile.Get(model.ProfileResumption))
	if dossier != nil && dossier.Text != "" {
		b.WriteString("\n\nContexto da Reunião (Dossiê Estratégico):\n")
		b.WriteString(dossier.Text)
		b.WriteString("\n\nUse este contexto para guiar sua pesquisa e encontrar insights mais relevantes e personalizados.")
	}
	b.WriteString(researchFormat)
	return b.String()
}

type researchDoc struct {
	Insights        *[]insightDoc `json:"insights"`
	ResumoExecutivo string        `json:"resumo_executivo"`
	Summary         string        `json:"summary"`
}

type insightDoc struct {
	Conteudo string  `json:"conteudo"`
	Content  string  `json:"content"`
	Fonte    string  `json:"fonte"`
	Source   string  `json:"source"`
	Link     *string `json:"link"`
}

// parseResearch accepts the Portuguese keys the prompt asks for and their
// English equivalents.
func parseResearch(text string) (*model.ResearchDossier, error) {
	var doc researchDoc
	if err := json.Unmarshal([]byte(stripFences(text)), &doc); err != nil {
		return nil, eris.Wrap(ErrInvalidResearch, err.Error())
	}
	if doc.Insights == nil {
		return nil, eris.Wrap(ErrInvalidResearch, "missing insights array")
	}

	out := &model.ResearchDossier{
		Insights: make([]model.Insight, 0, len(*doc.Insights)),
		Summary:  firstNonEmpty(doc.ResumoExecutivo, doc.Summary),
	}
	for _, in := range *doc.Insights {
		ins := model.Insight{
			Content: firstNonEmpty(in.Conteudo, in.Content),
			Source:  firstNonEmpty(in.Fonte, in.Source),
		}
		if in.Link != nil {
			if link := strings.TrimSpace(*in.Link); link != "" {
				ins.Link = &link
			}
		}
		out.Insights = append(out.Insights, ins)
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
