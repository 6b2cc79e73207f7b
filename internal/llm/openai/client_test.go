package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/compliance-tracker/internal/llm"
)

func newTestClient(url string) *Client {
	return NewClient(Config{APIKey: "sk-test", BaseURL: url, Model: "gpt-test", Temperature: 0.1}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestComplete_SendsJSONModeRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body.Model)
		assert.InDelta(t, 0.1, body.Temperature, 1e-6)
		assert.Equal(t, "json_object", body.ResponseFormat["type"])
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "extract this", body.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"insured_name\":\"Sparky\"}  "}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Complete(context.Background(), llm.Request{System: "sys", User: "extract this"})
	require.NoError(t, err)
	assert.Equal(t, `{"insured_name":"Sparky"}`, out)
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retriable bool
		malformed bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, retriable: true},
		{name: "server error", status: http.StatusBadGateway, body: `{}`, retriable: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":{"message":"bad"}}`},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{}`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, malformed: true},
		{name: "not json", status: http.StatusOK, body: `<html>`, malformed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Complete(context.Background(), llm.Request{})
			require.Error(t, err)
			if tt.malformed {
				assert.True(t, errors.Is(err, llm.ErrMalformed))
				return
			}
			var te *llm.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.status, te.StatusCode)
			assert.Equal(t, tt.retriable, te.Retriable)
		})
	}
}
