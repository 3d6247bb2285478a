package contract

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Constraints narrows the acceptable values of a field beyond its type.
// Pointer fields distinguish "unset" from a zero bound.
type Constraints struct {
	MinLength     *int     `yaml:"min_length"`
	MaxLength     *int     `yaml:"max_length"`
	Pattern       string   `yaml:"pattern"`
	AllowedValues []string `yaml:"allowed_values"`
	MinValue      *float64 `yaml:"min_value"`
	MaxValue      *float64 `yaml:"max_value"`
	Precision     *int     `yaml:"precision"`
}

// Field declares the expected shape of one record field. Nullable defaults
// to true when the contract does not say otherwise.
type Field struct {
	Type        string      `yaml:"type"`
	Nullable    *bool       `yaml:"nullable"`
	Constraints Constraints `yaml:"constraints"`
}

func (f Field) nullable() bool {
	return f.Nullable == nil || *f.Nullable
}

// Contract is a declared agreement about the records flowing through one
// table. It is immutable for the lifetime of a validation run.
type Contract struct {
	ContractName   string           `yaml:"contract_name"`
	TargetTable    string           `yaml:"target_table"`
	RequiredFields map[string]Field `yaml:"required_fields"`
	OptionalFields map[string]Field `yaml:"optional_fields"`

	ValidationRules struct {
		SchemaDrift struct {
			DetectNewFields *bool `yaml:"detect_new_fields"`
		} `yaml:"schema_drift"`
	} `yaml:"validation_rules"`

	Sampling struct {
		SampleSize int `yaml:"sample_size"`
	} `yaml:"sampling"`

	Alerting struct {
		LogToDatabase *bool `yaml:"log_to_database"`
	} `yaml:"alerting"`
}

// DetectNewFields reports whether undeclared fields count as violations.
// Drift detection is on unless the contract turns it off.
func (c *Contract) DetectNewFields() bool {
	v := c.ValidationRules.SchemaDrift.DetectNewFields
	return v == nil || *v
}

// LogToDatabase reports whether violations should be persisted as alerts.
func (c *Contract) LogToDatabase() bool {
	v := c.Alerting.LogToDatabase
	return v == nil || *v
}

// Load parses a contract document from a YAML file.
func Load(path string) (*Contract, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract %s: %w", path, err)
	}
	var c Contract
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse contract %s: %w", path, err)
	}
	if c.ContractName == "" {
		return nil, fmt.Errorf("contract %s has no contract_name", path)
	}
	if c.TargetTable == "" {
		return nil, fmt.Errorf("contract %s has no target_table", path)
	}
	return &c, nil
}
