package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalrag/backend/internal/domain"
)

type capturedRequest struct {
	Model          string `json:"model"`
	Temperature    float32
	MaxTokens      int `json:"max_tokens"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, content string, seen *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(url string) *Client {
	return NewClient(Config{
		APIKey:          "test",
		BaseURL:         url + "/v1",
		Model:           "gpt-4o",
		EmbeddingModel:  "text-embedding-3-small",
		JSONTemperature: 0.4,
		TextTemperature: 0.5,
		Timeout:         5 * time.Second,
	})
}

func TestCompleteJSONSendsJSONMode(t *testing.T) {
	var seen capturedRequest
	srv := chatServer(t, `{"result":"complete"}`, &seen)
	c := testClient(srv.URL)

	msgs := domain.Conversation("policy", []domain.Turn{{User: "u", System: "s"}}, "q")
	out, err := c.CompleteJSON(context.Background(), msgs, 1000)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"complete"}`, out)

	assert.Equal(t, "gpt-4o", seen.Model)
	assert.Equal(t, 1000, seen.MaxTokens)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, "json_object", seen.ResponseFormat.Type)
	require.Len(t, seen.Messages, 4)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "assistant", seen.Messages[2].Role)
	assert.Equal(t, "q", seen.Messages[3].Content)
}

func TestCompleteJSONRejectsInvalidJSON(t *testing.T) {
	srv := chatServer(t, `not json`, nil)
	c := testClient(srv.URL)

	_, err := c.CompleteJSON(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, 10)
	assert.ErrorIs(t, err, domain.ErrSchemaViolation)
}

func TestCompleteTextHasNoResponseFormat(t *testing.T) {
	var seen capturedRequest
	srv := chatServer(t, "plain research notes", &seen)
	c := testClient(srv.URL)

	out, err := c.CompleteText(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, 15000)
	require.NoError(t, err)
	assert.Equal(t, "plain research notes", out)
	assert.Nil(t, seen.ResponseFormat)
}

func TestCompleteDoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad","type":"invalid_request_error"}}`))
	}))
	t.Cleanup(srv.Close)

	_, err := testClient(srv.URL).CompleteText(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, 10)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	t.Cleanup(srv.Close)

	emb, err := testClient(srv.URL).Embed(context.Background(), "condonation")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, emb)
}

type mapStore struct {
	data map[string][]float32
}

func (m *mapStore) GetEmbedding(_ context.Context, k string) ([]float32, bool, error) {
	v, ok := m.data[k]
	return v, ok, nil
}

func (m *mapStore) SetEmbedding(_ context.Context, k string, v []float32, _ time.Duration) error {
	m.data[k] = v
	return nil
}

type countingOracle struct {
	domain.Oracle
	embeds int
}

func (c *countingOracle) Embed(context.Context, string) ([]float32, error) {
	c.embeds++
	return []float32{1, 2}, nil
}

func TestCachingOracleEmbedsOnce(t *testing.T) {
	inner := &countingOracle{}
	c := NewCachingOracle(inner, &mapStore{data: map[string][]float32{}}, "m", time.Hour)

	for i := 0; i < 3; i++ {
		emb, err := c.Embed(context.Background(), "same text")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, emb)
	}
	assert.Equal(t, 1, inner.embeds)

	_, err := c.Embed(context.Background(), "other text")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.embeds)
}
