package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/analytics"
	"github.com/flowvana/backend/internal/classify"
	"github.com/flowvana/backend/internal/flow"
	"github.com/flowvana/backend/internal/metrics"
	"github.com/flowvana/backend/internal/storage/models"
	"github.com/flowvana/backend/pkg/logger"
)

// State names a position in the dispatch machine. Every request starts at
// StateReceived and ends at StateResponded; no branch dead-ends.
type State string

const (
	StateReceived       State = "RECEIVED"
	StateClassified     State = "CLASSIFIED"
	StateFlowCorrection State = "FLOW_CORRECTION"
	StateKBLookup       State = "KB_LOOKUP"
	StateKBAnswer       State = "KB_ANSWER"
	StateNavHelp        State = "NAV_HELP"
	StateResponded      State = "RESPONDED"
)

const apologeticCompletion = "I'm sorry, something went wrong while processing your request. Please try again."

// Request is one chat query with its per-request flow catalog.
type Request struct {
	TenantID string
	Query    string
	Flows    []flow.Flow
}

// Response is the terminal payload of the dispatch machine.
type Response struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	Completion string                 `json:"completion"`
	Query      string                 `json:"query"`
	RequestID  string                 `json:"request_id"`
	FlowName   string                 `json:"flow_name,omitempty"`
	Inputs     map[string]interface{} `json:"inputs,omitempty"`
}

// Classifier resolves a query against a flow catalog.
type Classifier interface {
	Classify(ctx context.Context, query string, flows []flow.Flow) classify.Result
}

// KnowledgeChecker is the knowledge base existence collaborator.
type KnowledgeChecker interface {
	HasEntries(ctx context.Context, tenantID string) (bool, error)
}

// Answerer is the external knowledge-base answer collaborator. No
// implementation ships with this service.
type Answerer interface {
	Answer(ctx context.Context, tenantID, query string) (string, error)
}

// HelpResponder produces the scoped navigation/workflow help answer.
type HelpResponder interface {
	Generate(ctx context.Context, navigations []models.Navigation, flows []flow.Flow, query string) string
}

// NavigationLister supplies a tenant's records for the help prompt.
type NavigationLister interface {
	ListNavigations(tenantID string) ([]models.Navigation, error)
}

// Coordinator is the top-level dispatch machine. It is stateless across
// requests; kb and answerer may be nil when those collaborators are not
// configured, which degrades their branches rather than failing.
type Coordinator struct {
	classifier Classifier
	kb         KnowledgeChecker
	answerer   Answerer
	help       HelpResponder
	navs       NavigationLister
	recorder   *analytics.Recorder
}

func NewCoordinator(classifier Classifier, kb KnowledgeChecker, answerer Answerer, help HelpResponder, navs NavigationLister, recorder *analytics.Recorder) *Coordinator {
	return &Coordinator{
		classifier: classifier,
		kb:         kb,
		answerer:   answerer,
		help:       help,
		navs:       navs,
		recorder:   recorder,
	}
}

// Handle always returns a well-formed response; nothing below it reaches the
// caller. The request log is dispatched fire-and-forget alongside the
// response.
func (c *Coordinator) Handle(ctx context.Context, req Request) *Response {
	requestID := uuid.New().String()
	start := time.Now()

	resp, outcome, errText := c.run(ctx, requestID, req)

	elapsed := time.Since(start)
	metrics.QueryDuration.WithLabelValues("chat").Observe(elapsed.Seconds())
	metrics.ClassificationOutcome.WithLabelValues(string(outcome)).Inc()

	if c.recorder != nil {
		responseJSON, _ := json.Marshal(resp)
		c.recorder.Record(&models.RequestLog{
			RequestID: requestID,
			TenantID:  req.TenantID,
			Query:     req.Query,
			Response:  string(responseJSON),
			Type:      "chat",
			TimeTaken: elapsed.Seconds(),
			Error:     errText,
		})
	}

	return resp
}

func (c *Coordinator) run(ctx context.Context, requestID string, req Request) (resp *Response, outcome State, errText string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panicked",
				zap.String("request_id", requestID),
				zap.Any("panic", r),
			)
			outcome = StateResponded
			errText = "panic in dispatch"
			resp = &Response{
				Success:    false,
				Message:    "Internal error",
				Completion: apologeticCompletion,
				Query:      req.Query,
				RequestID:  requestID,
			}
		}
	}()

	state := StateReceived

	result := c.classifier.Classify(ctx, req.Query, req.Flows)
	state = StateClassified

	logger.Debug("query classified",
		zap.String("request_id", requestID),
		zap.String("flow_name", result.FlowName),
		zap.Bool("forward_to_chat", result.ForwardToChat),
	)

	if result.FlowName != "" || result.Corrections != "" {
		state = StateFlowCorrection
		// Empty corrections with a flow name means "ready to execute";
		// actually running the flow belongs to an external collaborator.
		return &Response{
			Success:    true,
			Message:    result.Corrections,
			Completion: result.Corrections,
			Query:      req.Query,
			RequestID:  requestID,
			FlowName:   result.FlowName,
			Inputs:     result.Inputs,
		}, state, ""
	}

	state = StateKBLookup
	if c.answer(ctx, req.TenantID) {
		if completion, ok := c.kbAnswer(ctx, req); ok {
			return &Response{
				Success:    true,
				Message:    "Answer generated from knowledge base",
				Completion: completion,
				Query:      req.Query,
				RequestID:  requestID,
			}, StateKBAnswer, ""
		}
	}

	state = StateNavHelp
	navigations, err := c.navs.ListNavigations(req.TenantID)
	if err != nil {
		// Help still answers with what we have rather than failing the request.
		logger.Warn("failed to load navigations for help",
			zap.String("tenant_id", req.TenantID), zap.Error(err))
		errText = err.Error()
		navigations = nil
	}

	completion := c.help.Generate(ctx, navigations, req.Flows, req.Query)
	return &Response{
		Success:    true,
		Message:    "Help response generated successfully",
		Completion: completion,
		Query:      req.Query,
		RequestID:  requestID,
	}, state, errText
}

// answer reports whether the knowledge base branch applies.
func (c *Coordinator) answer(ctx context.Context, tenantID string) bool {
	if c.kb == nil {
		return false
	}
	has, err := c.kb.HasEntries(ctx, tenantID)
	if err != nil {
		logger.Warn("knowledge base check failed, treating as empty",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return false
	}
	return has
}

// kbAnswer delegates to the external answer collaborator when one is wired;
// without one the machine falls through to NAV_HELP so it still terminates.
func (c *Coordinator) kbAnswer(ctx context.Context, req Request) (string, bool) {
	if c.answerer == nil {
		return "", false
	}
	completion, err := c.answerer.Answer(ctx, req.TenantID, req.Query)
	if err != nil {
		logger.Warn("knowledge base answer failed, falling back to help",
			zap.String("tenant_id", req.TenantID), zap.Error(err))
		return "", false
	}
	return completion, true
}
