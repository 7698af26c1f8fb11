package llmclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

const openAIOKBody = `{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "test-model",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "page.click(\"#go\")"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
}`

func setupOpenAIClient(t *testing.T, handler http.HandlerFunc) (*OpenAIClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, logs := setupTestLogger(t)
	cfg := getValidTranslatorConfig()
	cfg.Provider = config.ProviderOpenAI
	cfg.Endpoint = server.URL + "/"

	client, err := NewOpenAIClient(cfg, logger)
	require.NoError(t, err)
	return client, logs
}

func TestNewOpenAIClient_MissingAPIKey(t *testing.T) {
	logger, _ := setupTestLogger(t)
	cfg := getValidTranslatorConfig()
	cfg.APIKey = ""

	client, err := NewOpenAIClient(cfg, logger)
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestOpenAIClient_Generate_Success(t *testing.T) {
	var payload struct {
		Model    string                   `json:"model"`
		Messages []map[string]interface{} `json:"messages"`
	}
	client, logs := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &payload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, openAIOKBody)
	})

	text, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, `page.click("#go")`, text)

	assert.Equal(t, "test-model", payload.Model)
	require.Len(t, payload.Messages, 2)
	assert.Equal(t, "system", payload.Messages[0]["role"])
	assert.Equal(t, "user", payload.Messages[1]["role"])
	assert.Equal(t, "User query.", payload.Messages[1]["content"])

	entries := logs.FilterMessage("LLM generation complete (OpenAI)").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 8, entries[0].ContextMap()["total_tokens"])
}

func TestOpenAIClient_Generate_ImageAttachment(t *testing.T) {
	var body string
	client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, openAIOKBody)
	})

	req := createTestRequest()
	req.Attachments = []schemas.Attachment{{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}}
	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, body, "data:image/png;base64,iVBORw==")
	assert.Contains(t, body, "image_url")
}

func TestOpenAIClient_Generate_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error": {"message": "boom", "type": "server_error"}}`)
	})

	_, err := client.Generate(context.Background(), createTestRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai API error")
	assert.Equal(t, int32(1), calls.Load(), "the client must not retry on its own")
}
