package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/model"
	"github.com/aibanking/lending-assistant/internal/utils"
)

// customerNameColumn, when present in a row, is hashed into the result so the
// UI formatter can correlate without the raw name ever leaving the evaluator.
const customerNameColumn = "Customer_Name"

// EligibilityEvaluator classifies accounts against the registry's tables and
// extracts enriched exclusion reasons in rule order.
type EligibilityEvaluator struct {
	registry *EligibilityRegistry
	events   *EventLog
}

// NewEligibilityEvaluator creates an evaluator over a loaded registry.
func NewEligibilityEvaluator(registry *EligibilityRegistry, events *EventLog) *EligibilityEvaluator {
	return &EligibilityEvaluator{registry: registry, events: events}
}

// EvaluateBatch classifies each validated account in order.
func (e *EligibilityEvaluator) EvaluateBatch(requestID string, accounts []string) ([]model.EligibilityResult, error) {
	results := make([]model.EligibilityResult, 0, len(accounts))
	for _, account := range accounts {
		result, err := e.evaluateAccount(requestID, account)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *EligibilityEvaluator) evaluateAccount(requestID, account string) (model.EligibilityResult, error) {
	ev := e.events.Begin(requestID, "evaluator", "account_evaluated").
		WithTextHash("account_number_hash", account)

	result := model.EligibilityResult{
		AccountNumberHash: utils.HashText(account),
		Reasons:           []model.Reason{},
	}

	row, ok, err := e.registry.LookupEligible(account)
	if err != nil {
		ev.WithError(err).Emit()
		return result, err
	}
	if ok {
		result.Status = model.StatusEligible
		if name := strings.TrimSpace(row[customerNameColumn]); name != "" {
			result.CustomerNameHash = utils.HashText(name)
		}
		ev.WithField("status", string(result.Status)).Emit()
		return result, nil
	}

	row, ok, err = e.registry.LookupReasons(account)
	if err != nil {
		ev.WithError(err).Emit()
		return result, err
	}
	if !ok {
		result.Status = model.StatusCannotConfirm
		ev.WithField("status", string(result.Status)).Emit()
		return result, nil
	}

	result.Status = model.StatusNotEligible
	normalized := e.normalizeRow(row)
	if name := strings.TrimSpace(normalized[customerNameColumn]); name != "" {
		result.CustomerNameHash = utils.HashText(name)
	}
	result.Reasons = e.extractReasons(requestID, normalized)

	ev.WithField("status", string(result.Status)).
		WithField("reason_count", len(result.Reasons)).
		Emit()
	return result, nil
}

// normalizeRow applies the catalog's normalization: text blanks collapse to
// the empty string and declared numeric-null fields become "0".
func (e *EligibilityEvaluator) normalizeRow(row map[string]string) map[string]string {
	catalog := e.registry.Catalog()
	numericNull := make(map[string]struct{}, len(catalog.NumericNullAsZero))
	for _, name := range catalog.NumericNullAsZero {
		numericNull[name] = struct{}{}
	}

	normalized := make(map[string]string, len(row))
	for name, value := range row {
		v := value
		if catalog.TrimTextBlanks {
			v = strings.TrimSpace(v)
		}
		if strings.EqualFold(v, "null") {
			v = ""
		}
		if v == "" {
			if _, numeric := numericNull[name]; numeric {
				v = "0"
			}
		}
		normalized[name] = v
	}
	return normalized
}

// extractReasons scans the detection rules in declared order. Output order
// equals rule order; downstream rendering depends on this.
func (e *EligibilityEvaluator) extractReasons(requestID string, row map[string]string) []model.Reason {
	rules := e.registry.Rules()

	ignored := make(map[string]struct{}, len(rules.IgnoreColumns))
	for _, name := range rules.IgnoreColumns {
		ignored[name] = struct{}{}
	}

	reasons := make([]model.Reason, 0)
	for _, rule := range rules.Rules {
		if _, skip := ignored[rule.Trigger.Column]; skip {
			continue
		}
		if role, _ := e.registry.ColumnRole(rule.Trigger.Column); role == model.RoleIgnore {
			continue
		}
		if !triggerFires(rule.Trigger, row) {
			continue
		}

		reason := model.Reason{
			Code:     rule.ReasonCode,
			Facts:    e.buildFacts(rule, row),
			Evidence: collectEvidence(rule.EvidenceColumns, row),
		}

		entry, ok := e.registry.PlaybookEntry(rule.ReasonCode)
		if !ok {
			log.Error().
				Str("request_id", requestID).
				Str("reason_code", rule.ReasonCode).
				Msg("No playbook entry for reason code, emitting unenriched")
		} else {
			reason.Meaning = entry.Meaning
			reason.NextSteps = entry.NextSteps
			reason.ReviewType = entry.ReviewType
			reason.ReviewTiming = entry.ReviewTiming
		}

		reasons = append(reasons, reason)
	}
	return reasons
}

func triggerFires(trigger model.Trigger, row map[string]string) bool {
	value, ok := row[trigger.Column]
	if !ok {
		return false
	}
	switch trigger.Kind {
	case model.TriggerCheckEquals, model.TriggerCheckSpecialEquals:
		return value == trigger.Value
	}
	return false
}

func collectEvidence(columns []string, row map[string]string) map[string]any {
	evidence := make(map[string]any, len(columns))
	for _, name := range columns {
		evidence[name] = row[name]
	}
	return evidence
}

func (e *EligibilityEvaluator) buildFacts(rule model.ReasonRule, row map[string]string) []string {
	builder := rule.FactsBuilder
	switch builder.Kind {
	case model.FactsSimple:
		return append([]string(nil), builder.Facts...)

	case model.FactsSimpleWithParams:
		facts := make([]string, 0, len(builder.Facts))
		for _, fact := range builder.Facts {
			facts = append(facts, substitutePlaceholders(fact, row, builder.Parameters))
		}
		return facts

	case model.FactsMaxOfNumericFields:
		maxValue := 0.0
		maxField := ""
		for _, field := range builder.Fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[field]), 64)
			if err != nil {
				continue
			}
			if maxField == "" || v > maxValue {
				maxValue = v
				maxField = field
			}
		}
		if maxField == "" {
			return []string{}
		}
		template := builder.Template
		if template == "" {
			template = "Maximum of {max_value} days observed in {max_field} against a threshold of {threshold}"
		}
		replacer := strings.NewReplacer(
			"{max_value}", formatNumber(maxValue),
			"{max_field}", maxField,
			"{threshold}", formatNumber(builder.Threshold),
		)
		return []string{replacer.Replace(template)}
	}
	return []string{}
}

// substitutePlaceholders fills {column_name} tokens from the normalized row
// first, then from the rule's static parameters.
func substitutePlaceholders(fact string, row map[string]string, params map[string]string) string {
	out := fact
	for name, value := range row {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	for name, value := range params {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
