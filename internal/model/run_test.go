package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  OutcomeStatus
		written bool
		skipped bool
		failed  bool
	}{
		{OutcomeWritten, true, false, false},
		{OutcomeWrittenConflict, true, false, false},
		{OutcomeDryRun, false, false, false},
		{OutcomeSkippedExisting, false, true, false},
		{OutcomeSkippedNoCadence, false, true, false},
		{OutcomeSkippedNoRule, false, true, false},
		{OutcomeFailedWriter, false, false, true},
		{OutcomeFailedPersist, false, false, true},
		{OutcomeFailedError, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.written, tt.status.Written())
			assert.Equal(t, tt.skipped, tt.status.Skipped())
			assert.Equal(t, tt.failed, tt.status.Failed())
		})
	}
}

func TestBatchSummaryAdd(t *testing.T) {
	t.Parallel()

	var s BatchSummary
	s.Add(DealOutcome{DealID: 1, Status: OutcomeWritten, Cost: 0.02})
	s.Add(DealOutcome{DealID: 2, Status: OutcomeWrittenConflict, Cost: 0.01})
	s.Add(DealOutcome{DealID: 3, Status: OutcomeSkippedExisting})
	s.Add(DealOutcome{DealID: 4, Status: OutcomeFailedWriter, Cost: 0.005})

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Written)
	assert.Equal(t, 1, s.Conflicts)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 0.035, s.TotalCost, 1e-9)
	assert.Equal(t, 1, s.ByStatus[OutcomeFailedWriter])
}

func TestDealHasEmail(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Deal{}).HasEmail())
	assert.True(t, (&Deal{EmailTitle: "Olá"}).HasEmail())
	assert.True(t, (&Deal{EmailBody: "<p>corpo</p>"}).HasEmail())
}

func TestProfileKnownAndGet(t *testing.T) {
	t.Parallel()

	p := Profile{
		{Key: ProfileOrganization, Value: "Acme"},
		{Key: ProfileSector, Value: NotInformed},
		{Key: ProfileResumptionDate, Value: "Não definida"},
		{Key: ProfileBudget, Value: ""},
	}

	assert.Equal(t, "Acme", p.Get(ProfileOrganization))
	assert.Equal(t, "", p.Get("missing"))
	assert.Equal(t, Profile{{Key: ProfileOrganization, Value: "Acme"}}, p.Known())
}
