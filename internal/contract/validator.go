package contract

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type ViolationType string

const (
	MissingRequiredField ViolationType = "MISSING_REQUIRED_FIELD"
	TypeMismatch         ViolationType = "TYPE_MISMATCH"
	NullabilityViolation ViolationType = "NULLABILITY_VIOLATION"
	ConstraintViolation  ViolationType = "CONSTRAINT_VIOLATION"
	UnexpectedField      ViolationType = "UNEXPECTED_FIELD"
)

// Critical reports whether a violation type warrants immediate notification
// rather than just a persisted alert.
func (t ViolationType) Critical() bool {
	return t == TypeMismatch || t == MissingRequiredField
}

// Violation is one specific way a record broke the contract.
type Violation struct {
	Type         ViolationType `json:"type"`
	FieldName    string        `json:"field_name"`
	ExpectedType string        `json:"expected_type,omitempty"`
	ActualType   string        `json:"actual_type,omitempty"`
	Description  string        `json:"description"`
	Errors       []string      `json:"errors,omitempty"`
	RecordIndex  int           `json:"record_index"`
}

// Result is the outcome of validating one record. Valid is false iff any
// violation was found; malformed records never produce an error.
type Result struct {
	Valid      bool
	Violations []Violation
}

// Validator checks plain field-name-to-value records against a contract,
// regardless of whether they came from a table or a JSON log.
type Validator struct {
	contract *Contract
	patterns map[string]*regexp.Regexp
}

func NewValidator(c *Contract) (*Validator, error) {
	v := &Validator{contract: c, patterns: map[string]*regexp.Regexp{}}
	compile := func(fields map[string]Field) error {
		for name, f := range fields {
			p := f.Constraints.Pattern
			if p == "" {
				continue
			}
			// Anchored at the start only, matching the prefix semantics
			// contracts were written against.
			if !strings.HasPrefix(p, "^") {
				p = "^(?:" + p + ")"
			}
			re, err := regexp.Compile(p)
			if err != nil {
				return fmt.Errorf("invalid pattern for field %s: %w", name, err)
			}
			v.patterns[name] = re
		}
		return nil
	}
	if err := compile(c.RequiredFields); err != nil {
		return nil, err
	}
	if err := compile(c.OptionalFields); err != nil {
		return nil, err
	}
	return v, nil
}

// typeName names a value the way violation reports describe it.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int32, int64:
		return "integer"
	case float32, float64:
		return "float"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case time.Time:
		return "datetime"
	default:
		return reflect.TypeOf(v).String()
	}
}

// matchesType checks a decoded value against a declared contract type.
// JSON decoding yields float64 for every number, so integer fields accept
// whole floats.
func matchesType(declared string, v any) bool {
	switch strings.ToLower(declared) {
	case "string", "datetime":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "integer":
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		case float32:
			return float64(n) == math.Trunc(float64(n))
		default:
			return false
		}
	case "float":
		switch v.(type) {
		case float32, float64, int, int32, int64:
			return true
		default:
			return false
		}
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		_, ok := v.(string)
		return ok
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// decimalPlaces counts digits after the point in the shortest decimal
// rendering of v.
func decimalPlaces(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// checkConstraints returns the constraint errors for a value already known
// to match its declared type.
func (val *Validator) checkConstraints(name string, f Field, v any) []string {
	var errs []string
	c := f.Constraints

	switch strings.ToLower(f.Type) {
	case "string", "datetime", "":
		s, _ := v.(string)
		if c.MinLength != nil && len(s) < *c.MinLength {
			errs = append(errs, fmt.Sprintf("field '%s' length %d below minimum %d", name, len(s), *c.MinLength))
		}
		if c.MaxLength != nil && len(s) > *c.MaxLength {
			errs = append(errs, fmt.Sprintf("field '%s' length %d above maximum %d", name, len(s), *c.MaxLength))
		}
		if re, ok := val.patterns[name]; ok && !re.MatchString(s) {
			errs = append(errs, fmt.Sprintf("field '%s' value '%s' does not match pattern '%s'", name, s, c.Pattern))
		}
		if len(c.AllowedValues) > 0 {
			allowed := false
			for _, a := range c.AllowedValues {
				if s == a {
					allowed = true
					break
				}
			}
			if !allowed {
				errs = append(errs, fmt.Sprintf("field '%s' value '%s' not in allowed values", name, s))
			}
		}
	case "integer", "float":
		n, _ := asFloat(v)
		if c.MinValue != nil && n < *c.MinValue {
			errs = append(errs, fmt.Sprintf("field '%s' value %v below minimum %v", name, n, *c.MinValue))
		}
		if c.MaxValue != nil && n > *c.MaxValue {
			errs = append(errs, fmt.Sprintf("field '%s' value %v above maximum %v", name, n, *c.MaxValue))
		}
		if c.Precision != nil && strings.ToLower(f.Type) == "float" {
			if places := decimalPlaces(n); places > *c.Precision {
				errs = append(errs, fmt.Sprintf("field '%s' precision %d exceeds maximum %d", name, places, *c.Precision))
			}
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateRecord checks one record against the contract. Declared fields
// go through nullability, then type, then constraints; undeclared fields
// are violations when drift detection is on. Violations come back in a
// stable order: missing required fields first, then record fields, each
// group sorted by field name.
func (val *Validator) ValidateRecord(record map[string]any) Result {
	result := Result{Valid: true}
	c := val.contract

	for _, name := range sortedKeys(c.RequiredFields) {
		if _, present := record[name]; !present {
			result.Valid = false
			result.Violations = append(result.Violations, Violation{
				Type:        MissingRequiredField,
				FieldName:   name,
				Description: fmt.Sprintf("required field '%s' is missing", name),
			})
		}
	}

	for _, name := range sortedKeys(record) {
		value := record[name]
		field, declared := c.RequiredFields[name]
		if !declared {
			field, declared = c.OptionalFields[name]
		}

		if !declared {
			if c.DetectNewFields() {
				result.Valid = false
				result.Violations = append(result.Violations, Violation{
					Type:        UnexpectedField,
					FieldName:   name,
					ActualType:  typeName(value),
					Description: fmt.Sprintf("unexpected field '%s' not defined in contract", name),
				})
			}
			continue
		}

		if value == nil {
			if !field.nullable() {
				result.Valid = false
				result.Violations = append(result.Violations, Violation{
					Type:         NullabilityViolation,
					FieldName:    name,
					ExpectedType: field.Type,
					ActualType:   "null",
					Description:  fmt.Sprintf("field '%s' is not nullable but value is null", name),
				})
			}
			continue
		}

		if !matchesType(field.Type, value) {
			result.Valid = false
			result.Violations = append(result.Violations, Violation{
				Type:         TypeMismatch,
				FieldName:    name,
				ExpectedType: field.Type,
				ActualType:   typeName(value),
				Description:  fmt.Sprintf("field '%s' type mismatch: expected %s, got %s", name, field.Type, typeName(value)),
			})
			continue
		}

		if errs := val.checkConstraints(name, field, value); len(errs) > 0 {
			result.Valid = false
			result.Violations = append(result.Violations, Violation{
				Type:         ConstraintViolation,
				FieldName:    name,
				ExpectedType: field.Type,
				ActualType:   typeName(value),
				Description:  errs[0],
				Errors:       errs,
			})
		}
	}
	return result
}
