package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aibanking/lending-assistant/internal/model"
)

// PayloadAssembler wraps batch evaluation results into the validated payload
// consumed by the generator and the UI formatter.
type PayloadAssembler struct{}

// NewPayloadAssembler creates a payload assembler.
func NewPayloadAssembler() *PayloadAssembler {
	return &PayloadAssembler{}
}

// Assemble builds and validates a payload. latency is the wall-clock spent
// across the whole batch. Empty results yield a valid payload with a zeroed
// summary.
func (a *PayloadAssembler) Assemble(requestID string, results []model.EligibilityResult, latency time.Duration) (*model.EligibilityPayload, error) {
	payload := &model.EligibilityPayload{
		RequestID:      requestID,
		BatchTimestamp: time.Now().UTC(),
		Accounts:       results,
	}
	if payload.Accounts == nil {
		payload.Accounts = []model.EligibilityResult{}
	}

	summary := model.PayloadSummary{
		TotalAccounts:       len(payload.Accounts),
		ProcessingLatencyMS: float64(latency.Microseconds()) / 1000.0,
	}
	for _, acct := range payload.Accounts {
		switch acct.Status {
		case model.StatusEligible:
			summary.EligibleCount++
		case model.StatusNotEligible:
			summary.NotEligibleCount++
		case model.StatusCannotConfirm:
			summary.CannotConfirmCount++
		default:
			return nil, model.NewAppError(model.KindDBValidation,
				fmt.Sprintf("account %s has no status", acct.AccountNumberHash))
		}
		summary.TotalReasons += len(acct.Reasons)

		for _, reason := range acct.Reasons {
			if reason.Code == "" {
				return nil, model.NewAppError(model.KindDBValidation,
					fmt.Sprintf("account %s carries a reason with no code", acct.AccountNumberHash))
			}
			if len(reason.Facts) == 0 {
				return nil, model.NewAppError(model.KindDBValidation,
					fmt.Sprintf("reason %s carries no facts", reason.Code))
			}
			if reason.Meaning != "" && len(reason.NextSteps) == 0 {
				return nil, model.NewAppError(model.KindDBValidation,
					fmt.Sprintf("enriched reason %s carries no next steps", reason.Code))
			}
		}
	}
	payload.Summary = summary

	return payload, nil
}

// MarshalPayload produces the canonical JSON serialization of a payload.
func (a *PayloadAssembler) MarshalPayload(payload *model.EligibilityPayload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal eligibility payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload parses the canonical JSON serialization.
func (a *PayloadAssembler) UnmarshalPayload(data []byte) (*model.EligibilityPayload, error) {
	var payload model.EligibilityPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal eligibility payload: %w", err)
	}
	return &payload, nil
}
