package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/a2rchi/a2rchi/internal/a2rchi"
	"github.com/a2rchi/a2rchi/internal/catalog"
	"github.com/a2rchi/a2rchi/internal/config"
	"github.com/a2rchi/a2rchi/internal/embeddings"
	"github.com/a2rchi/a2rchi/internal/llm"
	"github.com/a2rchi/a2rchi/internal/pipeline"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
	"github.com/a2rchi/a2rchi/internal/vstoremgr"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dataPath := t.TempDir()
	cat, err := catalog.Load(dataPath, nil)
	require.NoError(t, err)

	collection := vectorcollection.NewMemoryCollection(vectorcollection.DistanceCosine, embeddings.NewDumbEmbedder())
	connector := vstoremgr.NewConnector(collection, cat, embeddings.NewDumbEmbedder(), config.VectorStoreConfig{
		Provider:        "memory",
		CollectionName:  "test",
		ChunkSize:       4000,
		ParallelWorkers: 2,
	}, nil)

	condensePrompt, err := prompt.New("condense", "History: {history}\nQuestion: {question}", nil)
	require.NoError(t, err)
	chatPrompt, err := prompt.New("chat", "Documents: {retriever_output}\nCondensed: {condensed_output}\nQuestion: {question}", nil)
	require.NoError(t, err)
	condenseModel, err := llm.NewDumbModel(1000, true)
	require.NoError(t, err)
	chatModel, err := llm.NewDumbModel(1000, true)
	require.NoError(t, err)

	qa, err := pipeline.NewQAPipeline(
		condenseModel, chatModel,
		condensePrompt, chatPrompt,
		nil, nil,
		1000,
		pipeline.HybridRetrieverConfig{K: 4, BM25Weight: 0.5, SemanticWeight: 0.5, BM25K1: 1.2, BM25B: 0.75},
		map[string]bool{"user": true, "assistant": true},
		nil,
	)
	require.NoError(t, err)

	summaryPrompt, err := prompt.New("summary", "Submission: {submission_text}", nil)
	require.NoError(t, err)
	analysisPrompt, err := prompt.New("analysis", "Submission: {submission_text}\nRubric: {rubric_text}\nSummary: {summary}", nil)
	require.NoError(t, err)
	finalPrompt, err := prompt.New("final", "Rubric: {rubric_text}\nSubmission: {submission_text}\nAnalysis: {analysis}", nil)
	require.NoError(t, err)
	gradingModel, err := llm.NewDumbModel(1000, true)
	require.NoError(t, err)

	grading, err := pipeline.NewGradingPipeline(
		gradingModel, gradingModel,
		summaryPrompt, analysisPrompt, finalPrompt,
		nil,
		1000, 4,
		nil,
	)
	require.NoError(t, err)

	facade, err := a2rchi.New(connector, map[string]pipeline.Pipeline{"qa": qa, "grading": grading}, "qa", nil)
	require.NoError(t, err)

	store := a2rchi.NewConversationStore("")

	srv, err := NewServer(facade, store, nil, Config{Host: "localhost", Port: 8000, GradingPipeline: "grading"}, prometheus.NewRegistry())
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleChatStartsNewConversation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/chat", ChatRequest{
		ClientID: "alice",
		Message:  "What is the capital of France?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ConversationID)
	require.NotEmpty(t, resp.Answer)
}

func TestHandleChatRejectsElapsedClientTimeout(t *testing.T) {
	srv := newTestServer(t)

	sentAt := time.Now().Add(-time.Hour)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/chat", ChatRequest{
		ClientID:        "alice",
		Message:         "hello",
		ClientSentTS:    sentAt.UnixMilli(),
		ClientTimeoutMS: 1000,
	})
	require.Equal(t, http.StatusRequestTimeout, rec.Code)
}

func TestHandleChatDeniesCrossClientConversation(t *testing.T) {
	srv := newTestServer(t)

	first := doJSON(t, srv, http.MethodPost, "/api/v1/chat", ChatRequest{
		ClientID: "bob",
		Message:  "hello",
	})
	require.Equal(t, http.StatusOK, first.Code)
	var firstResp ChatResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	second := doJSON(t, srv, http.MethodPost, "/api/v1/chat", ChatRequest{
		ClientID:       "alice",
		ConversationID: firstResp.ConversationID,
		Message:        "intrusion",
	})
	require.Equal(t, http.StatusForbidden, second.Code)
}

func TestHandleGradeReturnsGrade(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/grade", GradingRequest{
		SubmissionText: "my solution",
		RubricText:     "award points for correctness",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GradingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Grade)
}

func TestHandleChatRequiresClientID(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/chat", ChatRequest{Message: "hello"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
