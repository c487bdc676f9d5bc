package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	require.NoError(t, WriteError(rr, http.StatusConflict, ErrorEnvelope{
		Code:    "X_CONFLICT",
		Message: "conflict",
		Meta:    RequestMeta("req-1"),
	}))

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "X_CONFLICT", env.Code)
	require.Equal(t, "req-1", env.Meta["request_id"])
	require.Nil(t, RequestMeta(""))
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Title string `json:"title"`
	}
	var b body

	require.NoError(t, DecodeJSON(io.NopCloser(strings.NewReader(`{"title":"x"}`)), &b))
	require.Equal(t, "x", b.Title)

	require.Error(t, DecodeJSON(io.NopCloser(strings.NewReader(`{"title":"x","extra":1}`)), &b))
	require.ErrorIs(t, DecodeJSON(io.NopCloser(strings.NewReader(``)), &b), ErrEmptyBody)
	require.Error(t, DecodeJSON(io.NopCloser(strings.NewReader(`{"title":"x"}{}`)), &b))
}
