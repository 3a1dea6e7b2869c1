package model

import "time"

// Column roles recognized by the checks catalog.
const (
	RoleIdentifier   = "identifier"
	RoleCheck        = "check"
	RoleCheckSpecial = "check_special"
	RoleEvidence     = "evidence"
	RoleIgnore       = "ignore"
)

// Check column values with meaning to the evaluator.
const (
	CheckExclude = "Exclude"
	CheckInclude = "Include"
	RecencyNo    = "N"
	RecencyYes   = "Y"
)

// ChecksCatalog declares the column schema of the reasons table and its
// normalization rules.
type ChecksCatalog struct {
	Columns           []CatalogColumn `json:"columns"`
	NumericNullAsZero []string        `json:"numeric_null_as_zero"`
	TrimTextBlanks    bool            `json:"trim_text_blanks"`
}

// CatalogColumn is one declared column and its role.
type CatalogColumn struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// ReasonRules is the ordered reason-detection rule document.
type ReasonRules struct {
	IgnoreColumns []string     `json:"ignore_columns"`
	Rules         []ReasonRule `json:"rules"`
}

// ReasonRule binds a trigger to a reason code and describes how its facts are
// built. Rule order is the output order of extracted reasons.
type ReasonRule struct {
	ReasonCode      string       `json:"reason_code"`
	Trigger         Trigger      `json:"trigger"`
	EvidenceColumns []string     `json:"evidence_columns"`
	FactsBuilder    FactsBuilder `json:"facts_builder"`
}

// Trigger kinds.
const (
	TriggerCheckEquals        = "check_equals"
	TriggerCheckSpecialEquals = "check_special_equals"
)

// Trigger is a tagged condition on one column of a normalized row.
type Trigger struct {
	Kind   string `json:"kind"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

// FactsBuilder kinds.
const (
	FactsSimple             = "simple"
	FactsSimpleWithParams   = "simple_with_parameters"
	FactsMaxOfNumericFields = "max_of_numeric_fields"
)

// FactsBuilder describes how user-facing facts are produced for a rule.
type FactsBuilder struct {
	Kind       string            `json:"kind"`
	Facts      []string          `json:"facts,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Fields     []string          `json:"fields,omitempty"`
	Threshold  float64           `json:"threshold,omitempty"`
	Template   string            `json:"template,omitempty"`
}

// ReasonPlaybook maps reason codes to their staff-facing remediation entries.
type ReasonPlaybook struct {
	Entries map[string]PlaybookEntry `json:"entries"`
}

// PlaybookEntry is the explanation layer attached to a reason at enrichment.
type PlaybookEntry struct {
	Meaning               string     `json:"meaning"`
	NextSteps             []NextStep `json:"next_steps"`
	ReviewType            string     `json:"review_type"`
	ReviewTiming          string     `json:"review_timing"`
	ManualOverrideAllowed bool       `json:"manual_override_allowed"`
	Constraints           string     `json:"constraints,omitempty"`
}

// NextStep is one remediation action with its owning team.
type NextStep struct {
	Action string `json:"action"`
	Owner  string `json:"owner"`
	Timing string `json:"timing,omitempty"`
}

// EligibilityStatus is the per-account classification.
type EligibilityStatus string

const (
	StatusEligible      EligibilityStatus = "ELIGIBLE"
	StatusNotEligible   EligibilityStatus = "NOT_ELIGIBLE"
	StatusCannotConfirm EligibilityStatus = "CANNOT_CONFIRM"
)

// Reason is one extracted and enriched exclusion reason.
type Reason struct {
	Code         string         `json:"code"`
	Meaning      string         `json:"meaning,omitempty"`
	Facts        []string       `json:"facts"`
	Evidence     map[string]any `json:"evidence"`
	NextSteps    []NextStep     `json:"next_steps,omitempty"`
	ReviewType   string         `json:"review_type,omitempty"`
	ReviewTiming string         `json:"review_timing,omitempty"`
}

// EligibilityResult is the classification of one account.
type EligibilityResult struct {
	AccountNumberHash string            `json:"account_number_hash"`
	CustomerNameHash  string            `json:"customer_name_hash,omitempty"`
	Status            EligibilityStatus `json:"status"`
	Reasons           []Reason          `json:"reasons"`
}

// PayloadSummary holds the batch-level counts for a payload.
type PayloadSummary struct {
	TotalAccounts       int     `json:"total_accounts"`
	EligibleCount       int     `json:"eligible_count"`
	NotEligibleCount    int     `json:"not_eligible_count"`
	CannotConfirmCount  int     `json:"cannot_confirm_count"`
	TotalReasons        int     `json:"total_reasons"`
	ProcessingLatencyMS float64 `json:"processing_latency_ms"`
}

// EligibilityPayload is the batch payload handed to the generator and the UI
// formatter. Field layout is frozen; both the formatter prompt and the test
// harness parse it.
type EligibilityPayload struct {
	RequestID      string              `json:"request_id"`
	BatchTimestamp time.Time           `json:"batch_timestamp"`
	Accounts       []EligibilityResult `json:"accounts"`
	Summary        PayloadSummary      `json:"summary"`
}
