package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ErrorResponse(w, r, http.StatusTeapot, "nope")

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "nope", body.Message)
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Email string `json:"email"`
	}
	tests := []struct {
		name string
		body string
		want string
	}{
		{"Valid", `{"email":"a@b.c"}`, ""},
		{"Empty", ``, "must not be empty"},
		{"Malformed", `{"email":`, "badly-formed"},
		{"WrongType", `{"email":1}`, `field "email"`},
		{"UnknownField", `{"mail":"a"}`, `unknown key "mail"`},
		{"TwoValues", `{"email":"a"}{"email":"b"}`, "single JSON value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSONBody(w, r, &dst)
			if tt.want == "" {
				require.NoError(t, err)
				assert.Equal(t, "a@b.c", dst.Email)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
