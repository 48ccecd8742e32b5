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

func TestRespondWithJSON(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithJSON(http.StatusCreated, w, map[string]int{"count": 3})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"count":3}`, w.Body.String())
}

func TestRespondWithErrorTruncatesLongMessages(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithError(http.StatusInternalServerError, w, strings.Repeat("x", 500))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp["error"], 100)
}

func TestRespondWithErrorShortMessagePassesThrough(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithError(http.StatusBadRequest, w, "Mensagem obrigatória")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Mensagem obrigatória"}`, w.Body.String())
}
