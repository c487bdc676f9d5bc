package constants

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type contextKey string

const (
	TxKey        contextKey = "tx"
	LoggerKey    contextKey = "logger"
	RequestStart contextKey = "request_start"
	RequestIDKey contextKey = "request_id"
	ActorKey     contextKey = "actor"
)

const (
	DateFormat = "2006-01-02"
)

// Validate reports fields by their json name so API errors line up with the
// request body.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
