package controllers

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/changeorders/modules/changeorders/services"
	"github.com/iota-uz/changeorders/pkg/composables"
	"github.com/iota-uz/changeorders/pkg/httpapi"
	"github.com/iota-uz/changeorders/pkg/serrors"
)

const (
	codeInvalidQuery  = "CO_INVALID_QUERY"
	codeValidation    = "CO_VALIDATION"
	codeActorRequired = "CO_ACTOR_REQUIRED"
	codeInternal      = "CO_INTERNAL"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := httpapi.WriteJSON(w, status, payload); err != nil {
		composables.UseLogger(r.Context()).WithError(err).Warn("changeorders: write response failed")
	}
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	_ = httpapi.WriteError(w, status, httpapi.ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    httpapi.RequestMeta(composables.UseRequestID(r.Context())),
	})
}

func writeValidationError(w http.ResponseWriter, r *http.Request, fields serrors.ValidationErrors) {
	_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrorEnvelope{
		Code:    codeValidation,
		Message: fields.Error(),
		Meta:    httpapi.RequestMeta(composables.UseRequestID(r.Context())),
		Fields:  fields.Messages(),
	})
}

// writeServiceError answers with the status a ServiceError maps to. Causes of
// unexpected failures are logged and never echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *services.ServiceError
	if !errors.As(err, &se) {
		se = &services.ServiceError{Kind: services.KindUnexpected, Code: codeInternal, Message: "internal error", Cause: err}
	}

	status := se.Status()
	message := se.Message
	if status >= http.StatusInternalServerError {
		composables.UseLogger(r.Context()).WithFields(logrus.Fields{
			"code":  se.Code,
			"error": err.Error(),
		}).Error("changeorders: request failed")
		message = "internal error"
	}

	env := httpapi.ErrorEnvelope{
		Code:    se.Code,
		Message: message,
		Meta:    httpapi.RequestMeta(composables.UseRequestID(r.Context())),
	}
	if len(se.Fields) > 0 {
		env.Fields = se.Fields.Messages()
	}
	_ = httpapi.WriteError(w, status, env)
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	reason := "invalid json body: " + err.Error()
	if errors.Is(err, httpapi.ErrEmptyBody) {
		reason = "request body is required"
	}
	writeValidationError(w, r, serrors.ValidationErrors{"body": serrors.NewError(serrors.CodeFieldInvalid, reason, "")})
}
