package agent

import (
	"context"
	"strings"

	"github.com/sells-group/reengage-cli/internal/model"
)

const analystPrefix = "Analise a seguinte ata de reunião e extraia as informações relevantes:\n\nATA DE REUNIÃO:\n"

// Analyst turns meeting notes into a strategic dossier.
type Analyst struct {
	asker Asker
}

// NewAnalyst creates an Analyst.
func NewAnalyst(asker Asker) *Analyst {
	return &Analyst{asker: asker}
}

// Analyze returns nil without calling the assistant when notes are blank.
func (a *Analyst) Analyze(ctx context.Context, notes, agentID string) (*model.StrategicDossier, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, nil
	}
	reply, err := a.asker.Ask(ctx, agentID, analystPrefix+notes)
	if err != nil {
		return nil, err
	}
	return &model.StrategicDossier{Text: reply.Text, Usage: reply.Usage}, nil
}
