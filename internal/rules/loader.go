package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dbmon/internal/models"
)

var validOps = map[string]bool{
	">": true, ">=": true, "<": true, "<=": true, "==": true, "!=": true,
}

type ruleFile struct {
	Rules []models.Rule `yaml:"rules"`
}

// Load reads the declarative rule set from a YAML file. Severity defaults
// to medium. Rules are validated here so the engine can assume well-formed
// input.
func Load(path string) ([]models.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	for i := range file.Rules {
		if err := validate(&file.Rules[i]); err != nil {
			return nil, fmt.Errorf("rule %q: %w", file.Rules[i].ID, err)
		}
	}
	return file.Rules, nil
}

func validate(rule *models.Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("id is required")
	}
	if rule.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if rule.Field == "" {
		return fmt.Errorf("field is required")
	}
	if !validOps[rule.Op] {
		return fmt.Errorf("invalid operator: %q", rule.Op)
	}
	if rule.Value == nil {
		return fmt.Errorf("value is required")
	}
	if rule.Severity == "" {
		rule.Severity = models.SeverityMedium
	}
	if !rule.Severity.Valid() {
		return fmt.Errorf("invalid severity: %q", rule.Severity)
	}
	return nil
}
