package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

const fixtureCatalog = `{
  "columns": [
    {"name": "Account_Number", "role": "identifier"},
    {"name": "Customer_Name", "role": "evidence"},
    {"name": "Joint_Check", "role": "check"},
    {"name": "DPD_Arrears_Check", "role": "check"},
    {"name": "Recency_Check", "role": "check_special"},
    {"name": "Arrears_Days", "role": "evidence"},
    {"name": "Credit_Card_OD_Days", "role": "evidence"},
    {"name": "DPD_Days", "role": "evidence"},
    {"name": "Last_Credit_Date", "role": "evidence"},
    {"name": "Normalized_Mean", "role": "ignore"}
  ],
  "numeric_null_as_zero": ["Arrears_Days", "Credit_Card_OD_Days", "DPD_Days"],
  "trim_text_blanks": true
}`

const fixtureRules = `{
  "ignore_columns": ["Normalized_Mean"],
  "rules": [
    {
      "reason_code": "JOINT_ACCOUNT_EXCLUSION",
      "trigger": {"kind": "check_equals", "column": "Joint_Check", "value": "Exclude"},
      "evidence_columns": ["Joint_Check"],
      "facts_builder": {"kind": "simple", "facts": ["The account is operated jointly."]}
    },
    {
      "reason_code": "DPD_ARREARS_EXCLUSION",
      "trigger": {"kind": "check_equals", "column": "DPD_Arrears_Check", "value": "Exclude"},
      "evidence_columns": ["Arrears_Days", "Credit_Card_OD_Days", "DPD_Days"],
      "facts_builder": {
        "kind": "max_of_numeric_fields",
        "fields": ["Arrears_Days", "Credit_Card_OD_Days", "DPD_Days"],
        "threshold": 3,
        "template": "Maximum of {max_value} days in {max_field}, threshold {threshold}."
      }
    },
    {
      "reason_code": "RECENCY_EXCLUSION",
      "trigger": {"kind": "check_special_equals", "column": "Recency_Check", "value": "N"},
      "evidence_columns": ["Last_Credit_Date"],
      "facts_builder": {
        "kind": "simple_with_parameters",
        "facts": ["No recent activity; last credit on {Last_Credit_Date} (window {window_days} days)."],
        "parameters": {"window_days": "90"}
      }
    }
  ]
}`

const fixturePlaybook = `{
  "entries": {
    "JOINT_ACCOUNT_EXCLUSION": {
      "meaning": "Joint accounts are outside the digital-lending product.",
      "next_steps": [{"action": "Advise use of a sole account", "owner": "Branch staff"}],
      "review_type": "None",
      "review_timing": "Not applicable",
      "manual_override_allowed": false
    },
    "DPD_ARREARS_EXCLUSION": {
      "meaning": "Recent arrears block automatic limit assignment.",
      "next_steps": [{"action": "Clear the arrears", "owner": "Credit team"}],
      "review_type": "Automatic",
      "review_timing": "Next monthly refresh",
      "manual_override_allowed": false
    },
    "RECENCY_EXCLUSION": {
      "meaning": "The account activity is too old for scoring.",
      "next_steps": [{"action": "Make a qualifying deposit", "owner": "Branch staff"}],
      "review_type": "Automatic",
      "review_timing": "Weekly",
      "manual_override_allowed": false
    }
  }
}`

const fixtureEligible = `Account_Number,Customer_Name
1234567890,Alice Wanjiku
2345678901,Brian Otieno
`

const fixtureReasons = `Account_Number,Customer_Name,Joint_Check,DPD_Arrears_Check,Recency_Check,Arrears_Days,Credit_Card_OD_Days,DPD_Days,Last_Credit_Date,Normalized_Mean
9999999999,Daniel Kipchoge,Exclude,Exclude,N,10,4,2,2026-03-02,-47.3
8888888888,Esther Njeri,,Exclude,Y,5,,1,2026-06-14,12.1
`

// writeEligibilityFixtures lays the five eligibility documents down in a temp
// directory and returns their config.
func writeEligibilityFixtures(t *testing.T) config.EligibilityConfig {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"checks_catalog.json":    fixtureCatalog,
		"reason_rules.json":      fixtureRules,
		"reason_playbook.json":   fixturePlaybook,
		"eligible_customers.csv": fixtureEligible,
		"reasons_file.csv":       fixtureReasons,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	return config.EligibilityConfig{
		CatalogPath:      filepath.Join(dir, "checks_catalog.json"),
		RulesPath:        filepath.Join(dir, "reason_rules.json"),
		PlaybookPath:     filepath.Join(dir, "reason_playbook.json"),
		EligibleListPath: filepath.Join(dir, "eligible_customers.csv"),
		ReasonsFilePath:  filepath.Join(dir, "reasons_file.csv"),
	}
}

func loadedRegistry(t *testing.T) *EligibilityRegistry {
	t.Helper()
	cfg := writeEligibilityFixtures(t)
	registry := NewEligibilityRegistry()
	require.NoError(t, registry.Load(&cfg))
	return registry
}

func openMemory(t *testing.T) *ConversationMemory {
	t.Helper()
	memory, err := NewConversationMemory(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { memory.Close() })
	return memory
}

// fakeGenerator returns a canned completion and records the prompts it saw.
type fakeGenerator struct {
	response string
	err      error
	calls    int
	prompts  [][]model.PromptMessage
}

func (f *fakeGenerator) ProviderID() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, messages []model.PromptMessage) (*model.GenerationResult, error) {
	f.calls++
	f.prompts = append(f.prompts, messages)
	if f.err != nil {
		return nil, f.err
	}
	return &model.GenerationResult{
		Text:  f.response,
		Usage: model.GenerationUsage{PromptTokens: 10, CompletionTokens: 20},
	}, nil
}

// fakeRetriever serves canned chunks or a canned error.
type fakeRetriever struct {
	chunks []model.ScoredChunk
	err    error
}

func (f *fakeRetriever) Search(ctx context.Context, requestID, query string) ([]model.ScoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

// fakeEmbedder produces deterministic unit vectors of a fixed dimension.
type fakeEmbedder struct {
	dim int
	tag string
}

func (f *fakeEmbedder) ProviderID() string        { return "ollama" }
func (f *fakeEmbedder) EmbeddingSpaceTag() string { return f.tag }
func (f *fakeEmbedder) Dimensions() int           { return f.dim }

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32(len(text)%7+i%3) + 0.1
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, tx := range texts {
		v, _ := f.EmbedQuery(ctx, tx)
		out[i] = v
	}
	return out, nil
}
