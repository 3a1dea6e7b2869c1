package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibanking/lending-assistant/internal/model"
)

func TestAssembleSummaryCounts(t *testing.T) {
	a := NewPayloadAssembler()

	results := []model.EligibilityResult{
		{AccountNumberHash: "h1", Status: model.StatusEligible, Reasons: []model.Reason{}},
		{AccountNumberHash: "h2", Status: model.StatusNotEligible, Reasons: []model.Reason{
			{Code: "JOINT_ACCOUNT_EXCLUSION", Meaning: "m", Facts: []string{"f"},
				NextSteps: []model.NextStep{{Action: "a", Owner: "o"}}},
			{Code: "RECENCY_EXCLUSION", Meaning: "m", Facts: []string{"f"},
				NextSteps: []model.NextStep{{Action: "a", Owner: "o"}}},
		}},
		{AccountNumberHash: "h3", Status: model.StatusCannotConfirm, Reasons: []model.Reason{}},
	}

	payload, err := a.Assemble("req-1", results, 42*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, "req-1", payload.RequestID)
	assert.Equal(t, 3, payload.Summary.TotalAccounts)
	assert.Equal(t, 1, payload.Summary.EligibleCount)
	assert.Equal(t, 1, payload.Summary.NotEligibleCount)
	assert.Equal(t, 1, payload.Summary.CannotConfirmCount)
	assert.Equal(t, 2, payload.Summary.TotalReasons)
	assert.InDelta(t, 42.0, payload.Summary.ProcessingLatencyMS, 0.001)
}

func TestAssembleEmptyBatch(t *testing.T) {
	a := NewPayloadAssembler()

	payload, err := a.Assemble("req-2", nil, 0)
	require.NoError(t, err)
	assert.NotNil(t, payload.Accounts)
	assert.Empty(t, payload.Accounts)
	assert.Equal(t, model.PayloadSummary{}, payload.Summary)
}

func TestAssembleRejectsMissingStatus(t *testing.T) {
	a := NewPayloadAssembler()

	_, err := a.Assemble("req-3", []model.EligibilityResult{{AccountNumberHash: "h"}}, 0)
	assert.Error(t, err)
}

func TestAssembleRejectsReasonWithoutFacts(t *testing.T) {
	a := NewPayloadAssembler()

	_, err := a.Assemble("req-4", []model.EligibilityResult{
		{AccountNumberHash: "h", Status: model.StatusNotEligible, Reasons: []model.Reason{
			{Code: "X", Facts: []string{}},
		}},
	}, 0)
	assert.Error(t, err)
}

func TestPayloadRoundTrip(t *testing.T) {
	a := NewPayloadAssembler()

	results := []model.EligibilityResult{
		{AccountNumberHash: "h2", Status: model.StatusNotEligible, Reasons: []model.Reason{
			{Code: "JOINT_ACCOUNT_EXCLUSION", Meaning: "m", Facts: []string{"f1", "f2"},
				Evidence:   map[string]any{"Joint_Check": "Exclude"},
				NextSteps:  []model.NextStep{{Action: "a", Owner: "o", Timing: "now"}},
				ReviewType: "None", ReviewTiming: "Not applicable"},
		}},
	}

	payload, err := a.Assemble("req-5", results, 7*time.Millisecond)
	require.NoError(t, err)

	data, err := a.MarshalPayload(payload)
	require.NoError(t, err)

	decoded, err := a.UnmarshalPayload(data)
	require.NoError(t, err)

	assert.Equal(t, payload.RequestID, decoded.RequestID)
	assert.Equal(t, payload.Summary, decoded.Summary)
	require.Len(t, decoded.Accounts, 1)
	assert.Equal(t, payload.Accounts[0].Status, decoded.Accounts[0].Status)
	assert.Equal(t, payload.Accounts[0].Reasons[0].Code, decoded.Accounts[0].Reasons[0].Code)
	assert.Equal(t, payload.Accounts[0].Reasons[0].NextSteps, decoded.Accounts[0].Reasons[0].NextSteps)
	assert.True(t, payload.BatchTimestamp.Equal(decoded.BatchTimestamp))
}
