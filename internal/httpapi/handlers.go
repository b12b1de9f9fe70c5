package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/a2rchi"
	"github.com/a2rchi/a2rchi/internal/pipeline"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/retriever"
)

// handleChat serves POST /api/v1/chat: it enforces the client-declared
// timeout, resolves or creates the conversation, appends the inbound
// message, invokes the active (QA) pipeline, and appends the answer.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ClientID == "" || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client_id and message are required")
	}

	received := time.Now()
	if req.ClientTimeoutMS > 0 && req.ClientSentTS > 0 {
		sent := time.UnixMilli(req.ClientSentTS)
		if received.Sub(sent) > time.Duration(req.ClientTimeoutMS)*time.Millisecond {
			return echo.NewHTTPError(http.StatusRequestTimeout, "client timeout elapsed before the pipeline ran")
		}
	}

	convID := req.ConversationID
	var history []prompt.Message
	if convID == "" {
		id, err := s.conversation.Create(req.ClientID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to start conversation")
		}
		convID = id
	} else {
		h, err := s.conversation.History(req.ClientID, convID)
		if err != nil {
			if errors.Is(err, a2rchi.ErrConversationAccess) {
				return echo.NewHTTPError(http.StatusForbidden, "client does not own this conversation")
			}
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		history = h
	}

	userMsg := prompt.Message{Role: "user", Content: req.Message}
	if err := s.conversation.Append(req.ClientID, convID, userMsg); err != nil {
		return statusError(err)
	}

	in := pipeline.Input{History: append(append([]prompt.Message{}, history...), userMsg)}

	ctx := c.Request().Context()
	out, err := s.facade.Invoke(ctx, in)
	if err != nil {
		s.logger.Error(ctx, "chat pipeline invocation failed", zap.String("conversation_id", convID), zap.Error(err))
		return statusError(err)
	}

	if err := s.conversation.Append(req.ClientID, convID, prompt.Message{Role: "assistant", Content: out.Answer}); err != nil {
		s.logger.Warn(ctx, "failed to persist assistant turn", zap.String("conversation_id", convID), zap.Error(err))
	}

	return c.JSON(http.StatusOK, ChatResponse{
		ConversationID: convID,
		Answer:         out.Answer,
		Sources:        toSourceDocuments(out.SourceDocuments),
	})
}

// handleGrade serves POST /api/v1/grade: a stateless call into the
// named grading pipeline, with no conversation ownership involved.
func (s *Server) handleGrade(c echo.Context) error {
	if s.config.GradingPipeline == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "grading is not configured")
	}

	var req GradingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SubmissionText == "" || req.RubricText == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "submission_text and rubric_text are required")
	}

	in := pipeline.Input{
		SubmissionText:     req.SubmissionText,
		RubricText:         req.RubricText,
		AdditionalComments: req.AdditionalComments,
	}

	ctx := c.Request().Context()
	out, err := s.facade.InvokeNamed(ctx, s.config.GradingPipeline, in)
	if err != nil {
		s.logger.Error(ctx, "grading pipeline invocation failed", zap.Error(err))
		return statusError(err)
	}

	return c.JSON(http.StatusOK, GradingResponse{
		Grade:             out.Answer,
		IntermediateSteps: out.IntermediateSteps,
		Sources:           toSourceDocuments(out.SourceDocuments),
	})
}

// statusError maps a façade error to an echo.HTTPError, preferring the
// a2rchi.StatusCoder it carries and falling back to 500.
func statusError(err error) error {
	var coder a2rchi.StatusCoder
	if errors.As(err, &coder) {
		return echo.NewHTTPError(coder.StatusCode(), err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func toSourceDocuments(docs []retriever.ScoredDocument) []SourceDocument {
	if len(docs) == 0 {
		return nil
	}
	out := make([]SourceDocument, len(docs))
	for i, d := range docs {
		out[i] = SourceDocument{Content: d.Content, Metadata: d.Metadata, Score: d.Score}
	}
	return out
}
