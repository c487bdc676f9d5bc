package serrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// BaseError is a coded error carrying a stable machine code and a locale key
// that callers outside this service can translate.
type BaseError struct {
	Code         string            `json:"code"`
	Message      string            `json:"message"`
	LocaleKey    string            `json:"locale_key,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return e.Message
}

// Is matches any *BaseError with the same code, so sentinels survive copies
// made by WithTemplateData.
func (e *BaseError) Is(target error) bool {
	var other *BaseError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func (e *BaseError) WithTemplateData(data map[string]string) *BaseError {
	cp := *e
	cp.TemplateData = make(map[string]string, len(data))
	for k, v := range data {
		cp.TemplateData[k] = v
	}
	return &cp
}

const (
	CodeFieldRequired = "FIELD_REQUIRED"
	CodeFieldInvalid  = "FIELD_INVALID"
)

func NewFieldRequiredError(field, localeKey string) *BaseError {
	return NewError(CodeFieldRequired, fmt.Sprintf("%s is required", field), localeKey).
		WithTemplateData(map[string]string{"field": field})
}

func NewFieldInvalidError(field, reason, localeKey string) *BaseError {
	return NewError(CodeFieldInvalid, fmt.Sprintf("%s is invalid: %s", field, reason), localeKey).
		WithTemplateData(map[string]string{"field": field, "reason": reason})
}

// ValidationErrors maps a field name to the first error reported for it.
type ValidationErrors map[string]*BaseError

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, v[field].Message)
	}
	return strings.Join(parts, "; ")
}

func (v ValidationErrors) Messages() map[string]string {
	out := make(map[string]string, len(v))
	for field, err := range v {
		out[field] = err.Message
	}
	return out
}

// ProcessValidatorErrors converts go-playground validator output into
// BaseErrors keyed by struct field name.
func ProcessValidatorErrors(errs validator.ValidationErrors, localeKey func(field string) string) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		if _, ok := out[field]; ok {
			continue
		}
		key := ""
		if localeKey != nil {
			key = localeKey(field)
		}
		switch fe.Tag() {
		case "required":
			out[field] = NewFieldRequiredError(field, key)
		default:
			reason := fe.Tag()
			if fe.Param() != "" {
				reason = fe.Tag() + "=" + fe.Param()
			}
			out[field] = NewFieldInvalidError(field, reason, key)
		}
	}
	return out
}
