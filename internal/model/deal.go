package model

// Placeholders for deal attributes without a value.
const (
	NotInformed = "Não informado"
	NotDefined  = "Não definida"
)

// Deal is an open Pipedrive deal considered for a cadence email.
//
// Custom attributes that hold option ids (LabelID, OriginID and friends) keep
// the raw id; human text is resolved through the field map when needed.
type Deal struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	StageID    int     `json:"stage_id"`
	StageName  string  `json:"stage_name"`
	Status     string  `json:"status"`
	PersonName string  `json:"person_name"`
	OrgName    string  `json:"org_name"`
	Value      float64 `json:"value"`
	Currency   string  `json:"currency"`
	NotesCount int     `json:"notes_count"`
	UpdateTime string  `json:"update_time"`

	Sector          string `json:"sector"`
	Budget          string `json:"budget"`
	LabelID         string `json:"label_id"`
	OriginID        string `json:"origin_id"`
	SubOriginID     string `json:"sub_origin_id"`
	PortfolioID     string `json:"portfolio_id"`
	EmployeeCountID string `json:"employee_count_id"`
	ResumptionID    string `json:"resumption_id"`
	ResumptionDate  string `json:"resumption_date"`
	OriginDealID    string `json:"origin_deal_id"`

	// NurturingStep is the raw step counter as stored on the deal. Empty means
	// the counter was never initialized.
	NurturingStep string `json:"nurturing_step"`

	EmailTitle string `json:"email_title"`
	EmailBody  string `json:"email_body"`

	// Extra carries every attribute not mapped above.
	Extra map[string]any `json:"extra,omitempty"`
}

// HasEmail reports whether a generated email was already written to the deal.
func (d *Deal) HasEmail() bool {
	return d.EmailTitle != "" || d.EmailBody != ""
}

// Attribute is one labeled deal attribute passed to the writer and researcher.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Profile keys used by the agents' prompts.
const (
	ProfileContact        = "Deal contact person"
	ProfileOrganization   = "Deal organization"
	ProfileValue          = "Deal value"
	ProfileLabel          = "Etiqueta"
	ProfileSector         = "Setor da Empresa"
	ProfileOrigin         = "Origem"
	ProfileSubOrigin      = "Suborigem"
	ProfilePortfolio      = "Portfólio"
	ProfileBudget         = "Budget"
	ProfileEmployeeCount  = "Número de Funcionários"
	ProfileResumption     = "Retomada"
	ProfileResumptionDate = "Data de retomada"
)

// Profile is the ordered, human-readable view of a deal.
type Profile []Attribute

// Get returns the value stored under key, or "" if absent.
func (p Profile) Get(key string) string {
	for _, a := range p {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// Known returns the attributes that carry an actual value.
func (p Profile) Known() Profile {
	out := make(Profile, 0, len(p))
	for _, a := range p {
		if a.Value == "" || a.Value == NotInformed || a.Value == NotDefined {
			continue
		}
		out = append(out, a)
	}
	return out
}
