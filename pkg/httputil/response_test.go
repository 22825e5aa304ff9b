package httputil

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteJSON(w, 201, map[string]string{"hello": "world"})
	require.NoError(t, err)

	assert.Equal(t, 201, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"hello":"world"}`, w.Body.String())
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, 500, errors.New("boom"))

	assert.Equal(t, 500, w.Code)
	assert.JSONEq(t, `{"error":"boom"}`, w.Body.String())
}

func TestWriteStatusHelpers(t *testing.T) {
	cases := []struct {
		fn     func(w *httptest.ResponseRecorder)
		status int
	}{
		{func(w *httptest.ResponseRecorder) { WriteBadRequest(w, "x") }, 400},
		{func(w *httptest.ResponseRecorder) { WriteUnauthorized(w, "x") }, 401},
		{func(w *httptest.ResponseRecorder) { WriteForbidden(w, "x") }, 403},
		{func(w *httptest.ResponseRecorder) { WriteNotFound(w, "x") }, 404},
		{func(w *httptest.ResponseRecorder) { WriteServiceUnavailable(w, "x") }, 503},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		tc.fn(w)
		assert.Equal(t, tc.status, w.Code)
		assert.JSONEq(t, `{"error":"x"}`, w.Body.String())
	}
}

func TestWriteSuccessMessage(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteSuccessMessage(w, "done", nil)
	require.NoError(t, err)

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"success"`)
	assert.Contains(t, w.Body.String(), `"message":"done"`)
}

func TestDecodeJSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"new_password":"s3cret"}`))

	var body struct {
		NewPassword string `json:"new_password"`
	}
	require.NoError(t, DecodeJSON(r, &body))
	assert.Equal(t, "s3cret", body.NewPassword)
}
