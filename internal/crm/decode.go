package crm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sells-group/reengage-cli/internal/config"
	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/pkg/pipedrive"
)

// Decode maps a raw Pipedrive deal onto model.Deal using the configured
// custom field keys. Unmapped attributes land in Extra.
func Decode(rec pipedrive.Record, keys config.FieldKeys) *model.Deal {
	d := &model.Deal{ID: rec.ID()}
	used := map[string]bool{"id": true}

	take := func(key string) string {
		if key == "" {
			return ""
		}
		used[key] = true
		return text(rec[key])
	}

	d.Title = take("title")
	d.StageID = int(number(rec["stage_id"]))
	used["stage_id"] = true
	d.Status = take("status")
	d.PersonName = take("person_name")
	d.OrgName = take("org_name")
	d.Value = number(rec["value"])
	used["value"] = true
	d.Currency = take("currency")
	d.NotesCount = int(number(rec["notes_count"]))
	used["notes_count"] = true
	d.UpdateTime = take("update_time")

	d.Sector = take(keys.Sector)
	d.Budget = take(keys.Budget)
	d.LabelID = take(keys.Label)
	d.OriginID = take(keys.Origin)
	d.SubOriginID = take(keys.SubOrigin)
	d.PortfolioID = take(keys.Portfolio)
	d.EmployeeCountID = take(keys.EmployeeCount)
	d.ResumptionID = take(keys.Resumption)
	d.ResumptionDate = take(keys.ResumptionDate)
	d.OriginDealID = take(keys.OriginDealID)
	d.NurturingStep = take(keys.NurturingStep)
	d.EmailTitle = take(keys.EmailTitle)
	d.EmailBody = take(keys.EmailBody)

	for k, v := range rec {
		if used[k] {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]any)
		}
		d.Extra[k] = v
	}
	return d
}

// text renders a JSON value as the string a user would see in Pipedrive.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		if inner, ok := t["value"]; ok {
			return text(inner)
		}
		if name, ok := t["name"]; ok {
			return text(name)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
