package testcase

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with detailed context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validExpectedStatuses = map[string]bool{
	"passed":           true,
	"failed":           true,
	"error":            true,
	"config_error":     true,
	"setup_failed":     true,
	"wait_failed":      true,
	"assertion_failed": true,
}

var validTypes = map[string]bool{
	TypeLabels:      true,
	TypeMapping:     true,
	TypeCompanyTags: true,
}

// Validate validates a TestCase and returns detailed validation errors.
func Validate(tc *TestCase) error {
	var errs ValidationErrors

	if tc.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "name is required"})
	}
	if tc.Description == "" {
		errs = append(errs, ValidationError{Field: "description", Message: "description is required"})
	}

	if tc.Type == "" {
		errs = append(errs, ValidationError{Field: "type", Message: "type is required"})
	} else if !validTypes[tc.Type] {
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("invalid type '%s', must be one of: labels, mapping, company_tags", tc.Type),
		})
	}

	errs = append(errs, validateEntity(tc.Entity)...)
	errs = append(errs, validateTypeFields(tc)...)
	errs = append(errs, validateTimeouts(tc)...)

	if tc.ExpectedOutcome != nil && tc.ExpectedOutcome.Status != "" && !validExpectedStatuses[tc.ExpectedOutcome.Status] {
		errs = append(errs, ValidationError{
			Field:   "expectedOutcome.status",
			Message: fmt.Sprintf("invalid expected status '%s'", tc.ExpectedOutcome.Status),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEntity(entity EntitySpec) ValidationErrors {
	var errs ValidationErrors

	if entity.Kind == "" {
		errs = append(errs, ValidationError{Field: "entity.kind", Message: "entity kind is required"})
	} else if !entity.Kind.Valid() {
		errs = append(errs, ValidationError{
			Field:   "entity.kind",
			Message: fmt.Sprintf("invalid entity kind '%s', must be one of: instance, image", entity.Kind),
		})
	}

	if entity.ID == "" && entity.Name == "" {
		errs = append(errs, ValidationError{Field: "entity", Message: "one of entity.id or entity.name is required"})
	}

	return errs
}

func validateTypeFields(tc *TestCase) ValidationErrors {
	var errs ValidationErrors

	if (tc.Tag.Key == "") != (tc.Tag.Value == "") {
		errs = append(errs, ValidationError{Field: "tag", Message: "tag key and value must be set together"})
	}

	switch tc.Type {
	case TypeMapping, TypeCompanyTags:
		if tc.Mapping == nil || tc.Mapping.Category == "" {
			errs = append(errs, ValidationError{
				Field:   "mapping.category",
				Message: fmt.Sprintf("mapping category is required for type '%s'", tc.Type),
			})
		}
	case TypeLabels:
		if tc.Mapping != nil {
			errs = append(errs, ValidationError{Field: "mapping", Message: "mapping is not allowed for type 'labels'"})
		}
	}

	if tc.Type == TypeCompanyTags && tc.Tag.Key == "" {
		errs = append(errs, ValidationError{
			Field:   "tag",
			Message: "tag key and value of the existing provider tag are required for type 'company_tags'",
		})
	}

	return errs
}

func validateTimeouts(tc *TestCase) ValidationErrors {
	var errs ValidationErrors

	validateTimeout := func(field string, duration DurationString) bool {
		if duration == "" {
			return true
		}
		d, err := duration.Duration()
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "timeouts." + field,
				Message: fmt.Sprintf("invalid duration format: %v", err),
			})
			return false
		}
		if d <= 0 {
			errs = append(errs, ValidationError{Field: "timeouts." + field, Message: "duration must be > 0"})
			return false
		}
		return true
	}

	ok := validateTimeout("refresh", tc.Timeouts.Refresh)
	ok = validateTimeout("wait", tc.Timeouts.Wait) && ok
	ok = validateTimeout("delay", tc.Timeouts.Delay) && ok
	ok = validateTimeout("maxDelay", tc.Timeouts.MaxDelay) && ok
	if !ok {
		return errs
	}

	if _, err := tc.PollPolicy(); err != nil {
		errs = append(errs, ValidationError{Field: "timeouts", Message: err.Error()})
	}

	return errs
}
