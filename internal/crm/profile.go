package crm

import (
	"context"
	"strconv"

	"github.com/sells-group/reengage-cli/internal/fieldmap"
	"github.com/sells-group/reengage-cli/internal/model"
)

// OptionLookup turns raw option ids into their display text.
type OptionLookup interface {
	IDToText(ctx context.Context, field fieldmap.FieldType, raw string) string
}

// BuildProfile renders the deal in the order and labels the agents expect.
func BuildProfile(ctx context.Context, d *model.Deal, lookup OptionLookup) model.Profile {
	value := ""
	if d.Value != 0 {
		value = strconv.FormatFloat(d.Value, 'f', -1, 64)
	}
	return model.Profile{
		{Key: model.ProfileContact, Value: orDefault(d.PersonName, model.NotInformed)},
		{Key: model.ProfileOrganization, Value: orDefault(d.OrgName, model.NotInformed)},
		{Key: model.ProfileValue, Value: value},
		{Key: model.ProfileLabel, Value: lookup.IDToText(ctx, fieldmap.Label, d.LabelID)},
		{Key: model.ProfileSector, Value: orDefault(d.Sector, model.NotInformed)},
		{Key: model.ProfileOrigin, Value: lookup.IDToText(ctx, fieldmap.Origin, d.OriginID)},
		{Key: model.ProfileSubOrigin, Value: lookup.IDToText(ctx, fieldmap.SubOrigin, d.SubOriginID)},
		{Key: model.ProfilePortfolio, Value: lookup.IDToText(ctx, fieldmap.Portfolio, d.PortfolioID)},
		{Key: model.ProfileBudget, Value: orDefault(d.Budget, model.NotInformed)},
		{Key: model.ProfileEmployeeCount, Value: lookup.IDToText(ctx, fieldmap.EmployeeCount, d.EmployeeCountID)},
		{Key: model.ProfileResumption, Value: lookup.IDToText(ctx, fieldmap.Resumption, d.ResumptionID)},
		{Key: model.ProfileResumptionDate, Value: orDefault(d.ResumptionDate, model.NotDefined)},
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
