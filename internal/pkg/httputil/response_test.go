package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessAndError(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]string{"id": "1"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"1"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Error(rec, http.StatusConflict, "incident is not open")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"incident is not open"}}`, rec.Body.String())
}

func TestValidationError(t *testing.T) {
	t.Run("validator errors list fields", func(t *testing.T) {
		type input struct {
			Title string `validate:"required"`
			Event string `validate:"oneof=start hold"`
		}
		err := validator.New().Struct(input{Event: "jump"})
		require.Error(t, err)

		rec := httptest.NewRecorder()
		ValidationError(rec, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body struct {
			Error struct {
				Message string       `json:"message"`
				Details []FieldError `json:"details"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "validation error", body.Error.Message)
		assert.Equal(t, []FieldError{
			{Field: "Title", Message: "required"},
			{Field: "Event", Message: "oneof=start hold"},
		}, body.Error.Details)
	})

	t.Run("other errors as text", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ValidationError(rec, errors.New("invalid JSON body"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":{"message":"validation error","details":"invalid JSON body"}}`, rec.Body.String())
	})
}

func TestText(t *testing.T) {
	rec := httptest.NewRecorder()
	Text(rec, http.StatusServiceUnavailable, "Database unavailable")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Database unavailable", rec.Body.String())
}
