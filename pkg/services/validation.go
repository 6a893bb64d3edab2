package services

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var codeSeparators = regexp.MustCompile(`[^A-Z0-9]+`)

// validateStruct runs the struct tags of req and reports the first failing field.
func validateStruct(op string, req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		field := fieldErrs[0]

		return NewValidationError(op, "INVALID_FIELD",
			"field '"+field.Field()+"' failed on the '"+field.Tag()+"' rule", errors.Join(ErrInvalidRequest, err))
	}

	return NewValidationError(op, "INVALID_REQUEST", err.Error(), errors.Join(ErrInvalidRequest, err))
}

// requireName trims name and rejects it when empty.
func requireName(op, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", NewValidationError(op, "NAME_REQUIRED", "name is required", ErrNameRequired)
	}

	return trimmed, nil
}

// normalizeCode uppercases code and collapses every run of non-alphanumerics into one underscore.
func normalizeCode(code string) string {
	upper := strings.ToUpper(strings.TrimSpace(code))

	return strings.Trim(codeSeparators.ReplaceAllString(upper, "_"), "_")
}
