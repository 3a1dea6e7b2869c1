package service

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

// EligibilityRegistry loads the three eligibility config documents and the
// two tabular data sources once at startup and exposes indexed lookups. It is
// read-only after Load; a failed Load must keep the orchestrator from
// servicing eligibility requests.
type EligibilityRegistry struct {
	catalog  *model.ChecksCatalog
	rules    *model.ReasonRules
	playbook *model.ReasonPlaybook

	columnRoles map[string]string
	eligible    map[string]map[string]string // account number -> eligible row
	reasons     map[string]map[string]string // account number -> reasons row

	reloadRequests chan struct{}
}

// NewEligibilityRegistry creates an empty registry. Call Load before use.
func NewEligibilityRegistry() *EligibilityRegistry {
	return &EligibilityRegistry{
		reloadRequests: make(chan struct{}, 1),
	}
}

// Load reads and validates all five documents. Any failure is startup-fatal
// and carries one of the startup error kinds.
func (r *EligibilityRegistry) Load(cfg *config.EligibilityConfig) error {
	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	rules, err := loadRules(cfg.RulesPath)
	if err != nil {
		return err
	}

	playbook, err := loadPlaybook(cfg.PlaybookPath)
	if err != nil {
		return err
	}

	roles := make(map[string]string, len(catalog.Columns))
	for _, col := range catalog.Columns {
		roles[col.Name] = col.Role
	}

	// Every column a rule references must exist in the catalog.
	for _, rule := range rules.Rules {
		if _, ok := roles[rule.Trigger.Column]; !ok {
			return model.NewAppError(model.KindConfigSchema,
				fmt.Sprintf("rule %s references unknown column %s", rule.ReasonCode, rule.Trigger.Column))
		}
		for _, ev := range rule.EvidenceColumns {
			if _, ok := roles[ev]; !ok {
				return model.NewAppError(model.KindConfigSchema,
					fmt.Sprintf("rule %s references unknown evidence column %s", rule.ReasonCode, ev))
			}
		}
		for _, f := range rule.FactsBuilder.Fields {
			if _, ok := roles[f]; !ok {
				return model.NewAppError(model.KindConfigSchema,
					fmt.Sprintf("rule %s references unknown numeric field %s", rule.ReasonCode, f))
			}
		}
	}

	// Every reason code must resolve to a playbook entry.
	for _, rule := range rules.Rules {
		if _, ok := playbook.Entries[rule.ReasonCode]; !ok {
			return model.NewAppError(model.KindUnresolvedReasonCode,
				fmt.Sprintf("reason code %s has no playbook entry", rule.ReasonCode))
		}
	}

	identifierColumn := ""
	for _, col := range catalog.Columns {
		if col.Role == model.RoleIdentifier {
			identifierColumn = col.Name
			break
		}
	}
	if identifierColumn == "" {
		return model.NewAppError(model.KindConfigSchema, "catalog declares no identifier column")
	}

	eligible, err := loadTable(cfg.EligibleListPath, identifierColumn, nil)
	if err != nil {
		return err
	}

	reasons, err := loadTable(cfg.ReasonsFilePath, identifierColumn, func(header []string, row map[string]string) {
		normalizeCheckValues(roles, row)
	})
	if err != nil {
		return err
	}

	r.catalog = catalog
	r.rules = rules
	r.playbook = playbook
	r.columnRoles = roles
	r.eligible = eligible
	r.reasons = reasons

	log.Info().
		Int("columns", len(catalog.Columns)).
		Int("rules", len(rules.Rules)).
		Int("playbook_entries", len(playbook.Entries)).
		Int("eligible_rows", len(eligible)).
		Int("reason_rows", len(reasons)).
		Msg("Eligibility configuration loaded")

	return nil
}

// Catalog returns the loaded checks catalog.
func (r *EligibilityRegistry) Catalog() *model.ChecksCatalog {
	return r.catalog
}

// Rules returns the loaded reason-detection rules.
func (r *EligibilityRegistry) Rules() *model.ReasonRules {
	return r.rules
}

// PlaybookEntry resolves a reason code to its playbook entry.
func (r *EligibilityRegistry) PlaybookEntry(code string) (model.PlaybookEntry, bool) {
	entry, ok := r.playbook.Entries[code]
	return entry, ok
}

// ColumnRole returns the catalog role for a column name.
func (r *EligibilityRegistry) ColumnRole(name string) (string, bool) {
	role, ok := r.columnRoles[name]
	return role, ok
}

// LookupEligible returns the positive-list row for an account.
func (r *EligibilityRegistry) LookupEligible(account string) (map[string]string, bool, error) {
	if err := r.checkAvailable(len(r.eligible), "eligible_customers"); err != nil {
		return nil, false, err
	}
	row, ok := r.eligible[account]
	return row, ok, nil
}

// LookupReasons returns the reasons-file row for an account.
func (r *EligibilityRegistry) LookupReasons(account string) (map[string]string, bool, error) {
	if err := r.checkAvailable(len(r.reasons), "reasons_file"); err != nil {
		return nil, false, err
	}
	row, ok := r.reasons[account]
	return row, ok, nil
}

// Available reports whether the registry is loaded and both lookup tables
// hold rows. The readiness probe serves this; an empty table makes the
// service not-ready while chat turns surface the contact-admin message.
func (r *EligibilityRegistry) Available() bool {
	return r.catalog != nil && len(r.eligible) > 0 && len(r.reasons) > 0
}

// ReloadRequests exposes the reload signal. An out-of-scope refresher consumes
// it; the registry itself never refreshes.
func (r *EligibilityRegistry) ReloadRequests() <-chan struct{} {
	return r.reloadRequests
}

func (r *EligibilityRegistry) checkAvailable(count int, table string) error {
	if count > 0 {
		return nil
	}
	select {
	case r.reloadRequests <- struct{}{}:
	default:
	}
	log.Error().Str("table", table).Msg("Lookup table is empty, reload requested")
	return model.NewAppError(model.KindDataUnavailable,
		fmt.Sprintf("lookup table %s is empty", table))
}

func loadCatalog(path string) (*model.ChecksCatalog, error) {
	var catalog model.ChecksCatalog
	if err := loadJSONDocument(path, &catalog); err != nil {
		return nil, err
	}
	if len(catalog.Columns) == 0 {
		return nil, model.NewAppError(model.KindConfigSchema, "checks catalog declares no columns")
	}
	for _, col := range catalog.Columns {
		switch col.Role {
		case model.RoleIdentifier, model.RoleCheck, model.RoleCheckSpecial, model.RoleEvidence, model.RoleIgnore:
		default:
			return nil, model.NewAppError(model.KindConfigSchema,
				fmt.Sprintf("column %s has unknown role %q", col.Name, col.Role))
		}
	}
	return &catalog, nil
}

func loadRules(path string) (*model.ReasonRules, error) {
	var rules model.ReasonRules
	if err := loadJSONDocument(path, &rules); err != nil {
		return nil, err
	}
	if len(rules.Rules) == 0 {
		return nil, model.NewAppError(model.KindConfigSchema, "reason rules document declares no rules")
	}
	for _, rule := range rules.Rules {
		switch rule.Trigger.Kind {
		case model.TriggerCheckEquals, model.TriggerCheckSpecialEquals:
		default:
			return nil, model.NewAppError(model.KindConfigSchema,
				fmt.Sprintf("rule %s has unknown trigger kind %q", rule.ReasonCode, rule.Trigger.Kind))
		}
		switch rule.FactsBuilder.Kind {
		case model.FactsSimple, model.FactsSimpleWithParams, model.FactsMaxOfNumericFields:
		default:
			return nil, model.NewAppError(model.KindConfigSchema,
				fmt.Sprintf("rule %s has unknown facts builder kind %q", rule.ReasonCode, rule.FactsBuilder.Kind))
		}
	}
	return &rules, nil
}

func loadPlaybook(path string) (*model.ReasonPlaybook, error) {
	var playbook model.ReasonPlaybook
	if err := loadJSONDocument(path, &playbook); err != nil {
		return nil, err
	}
	if len(playbook.Entries) == 0 {
		return nil, model.NewAppError(model.KindConfigSchema, "reason playbook has no entries")
	}
	return &playbook, nil
}

func loadJSONDocument(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.WrapAppError(model.KindConfigMissing, fmt.Sprintf("config document %s not found", path), err)
		}
		return model.WrapAppError(model.KindConfigMissing, fmt.Sprintf("failed to read %s", path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return model.WrapAppError(model.KindConfigParse, fmt.Sprintf("failed to parse %s", path), err)
	}
	return nil
}

// loadTable reads a CSV table into an account-number index. The first column
// header matching identifierColumn keys the index; postprocess, when set, runs
// per row after scanning.
func loadTable(path, identifierColumn string, postprocess func(header []string, row map[string]string)) (map[string]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapAppError(model.KindDataMissing, fmt.Sprintf("data file %s not found", path), err)
		}
		return nil, model.WrapAppError(model.KindDataMissing, fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, model.WrapAppError(model.KindDataSchema, fmt.Sprintf("failed to read header of %s", path), err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	idIdx := -1
	for i, name := range header {
		if name == identifierColumn {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, model.NewAppError(model.KindDataSchema,
			fmt.Sprintf("%s has no %s column", path, identifierColumn))
	}

	index := make(map[string]map[string]string)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, model.WrapAppError(model.KindDataSchema, fmt.Sprintf("failed to read row of %s", path), err)
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		if postprocess != nil {
			postprocess(header, row)
		}
		index[strings.TrimSpace(row[identifierColumn])] = row
	}

	return index, nil
}

// normalizeCheckValues warns on and clears values outside the expected set for
// role=check and role=check_special columns.
func normalizeCheckValues(roles map[string]string, row map[string]string) {
	for name, value := range row {
		trimmed := strings.TrimSpace(value)
		switch roles[name] {
		case model.RoleCheck:
			if trimmed != "" && trimmed != model.CheckInclude && trimmed != model.CheckExclude {
				log.Warn().Str("column", name).Msg("Unexpected check value normalized to blank")
				row[name] = ""
			}
		case model.RoleCheckSpecial:
			if trimmed != "" && trimmed != model.RecencyYes && trimmed != model.RecencyNo {
				log.Warn().Str("column", name).Msg("Unexpected recency value normalized to blank")
				row[name] = ""
			}
		}
	}
}
