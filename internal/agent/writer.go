package agent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reengage-cli/internal/model"
)

// Parse strategies recorded on model.Email.
const (
	StrategyJSON    = "json"
	StrategyLabeled = "labeled"
	StrategyRaw     = "raw"
)

// FallbackTitle is used when the reply carries no recognizable subject.
const FallbackTitle = "[Generated] Follow-up Email"

// WriterInput is everything the writer assistant receives for one email.
type WriterInput struct {
	CadenceName string
	ContentType string
	Profile     model.Profile
	Strategic   *model.StrategicDossier
	Research    *model.ResearchDossier
}

// Writer drafts the cadence email.
type Writer struct {
	asker   Asker
	parsers []responseParser
}

// NewWriter creates a Writer.
func NewWriter(asker Asker) *Writer {
	return &Writer{
		asker:   asker,
		parsers: []responseParser{jsonParser{}, labeledParser{}, rawParser{}},
	}
}

// Generate asks agentID for an email. It fails only when the assistant
// returns no text.
func (w *Writer) Generate(ctx context.Context, agentID string, in WriterInput) (*model.Email, error) {
	msg, err := writerMessage(in)
	if err != nil {
		return nil, err
	}
	reply, err := w.asker.Ask(ctx, agentID, msg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, eris.Wrap(ErrNoReply, "agent: writer returned empty text")
	}

	for _, p := range w.parsers {
		if email, ok := p.parse(reply.Text); ok {
			email.Usage = reply.Usage
			return email, nil
		}
	}
	return nil, eris.Wrap(ErrNoReply, "agent: no parser accepted writer reply")
}

func writerMessage(in WriterInput) (string, error) {
	var b strings.Builder
	b.WriteString("TIPO DE CONTATO: ")
	b.WriteString(in.CadenceName)

	b.WriteString("\n\nDADOS DO CLIENTE:")
	for _, a := range in.Profile {
		if a.Value == "" {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(a.Key)
		b.WriteString(": ")
		b.WriteString(a.Value)
	}

	if in.ContentType != "" {
		b.WriteString("\n\nTIPO DE CONTEÚDO: ")
		b.WriteString(in.ContentType)
	}
	if in.Strategic != nil && in.Strategic.Text != "" {
		b.WriteString("\n\nDOSSIÊ ESTRATÉGICO (CONTEXTO DA REUNIÃO):\n")
		b.WriteString(in.Strategic.Text)
	}
	if in.Research != nil {
		raw, err := json.MarshalIndent(in.Research, "", "  ")
		if err != nil {
			return "", eris.Wrap(err, "agent: marshal research dossier")
		}
		b.WriteString("\n\nDOSSIÊ DE PESQUISA (INFORMAÇÕES EXTERNAS):\n")
		b.Write(raw)
	}
	return b.String(), nil
}

// responseParser extracts an email from assistant text.
type responseParser interface {
	parse(text string) (*model.Email, bool)
}

var (
	titleKeys = []string{"titulo", "title", "assunto", "subject"}
	bodyKeys  = []string{"corpo_html", "corpo", "body_html", "body"}
)

type jsonParser struct{}

func (jsonParser) parse(text string) (*model.Email, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(stripFences(text)), &doc); err != nil {
		return nil, false
	}
	title := firstString(doc, titleKeys)
	body := firstString(doc, bodyKeys)
	if title == "" || body == "" {
		return nil, false
	}
	return &model.Email{Title: title, Body: body, Strategy: StrategyJSON}, true
}

func firstString(doc map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := doc[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

var (
	labeledTitle = regexp.MustCompile(`(?i)(?:título|titulo|title|assunto|subject)\**\s*:\s*\**\s*(.+)`)
	labeledBody  = regexp.MustCompile(`(?i)(?:corpo|body|conteúdo|conteudo)(?:_html)?\**\s*:\s*\**\s*([\s\S]+)`)
)

type labeledParser struct{}

func (labeledParser) parse(text string) (*model.Email, bool) {
	t := labeledTitle.FindStringSubmatch(text)
	b := labeledBody.FindStringSubmatch(text)
	if t == nil || b == nil {
		return nil, false
	}
	title := strings.TrimSpace(t[1])
	body := strings.TrimSpace(b[1])
	if title == "" || body == "" {
		return nil, false
	}
	return &model.Email{Title: title, Body: body, Strategy: StrategyLabeled}, true
}

type rawParser struct{}

func (rawParser) parse(text string) (*model.Email, bool) {
	body := strings.TrimSpace(text)
	if body == "" {
		return nil, false
	}
	return &model.Email{Title: FallbackTitle, Body: body, Strategy: StrategyRaw}, true
}
