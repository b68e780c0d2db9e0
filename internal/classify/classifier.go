package classify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/flow"
	"github.com/flowvana/backend/pkg/logger"
)

// Result is the trustworthy classification of one query against one flow
// catalog. If FlowName is non-empty it names a flow present in the catalog
// the caller supplied.
type Result struct {
	FlowName      string                 `json:"flow_name"`
	Inputs        map[string]interface{} `json:"inputs"`
	Corrections   string                 `json:"corrections"`
	ForwardToChat bool                   `json:"forward_to_chat"`
}

// Completer is the text classification collaborator contract.
type Completer interface {
	CompleteJSON(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// Classifier wraps the classification collaborator and re-validates its
// output locally. The collaborator is untrusted: wrong flow names, missed
// required inputs, and malformed JSON are all repaired here.
type Classifier struct {
	completer Completer
	model     string
	timeout   time.Duration
}

func New(completer Completer, model string, timeout time.Duration) *Classifier {
	return &Classifier{completer: completer, model: model, timeout: timeout}
}

// Classify never fails: any collaborator error collapses to the safe
// forward-to-chat default.
func (c *Classifier) Classify(ctx context.Context, query string, flows []flow.Flow) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.completer.CompleteJSON(ctx, c.model, systemPrompt, buildPrompt(query, flow.FormatCatalog(flows)))
	if err != nil {
		logger.Warn("classification call failed", zap.Error(err))
		return safeDefault("Error processing query: " + err.Error())
	}

	var result Result
	if err := json.Unmarshal([]byte(stripFences(raw)), &result); err != nil {
		logger.Warn("classification returned malformed JSON", zap.Error(err))
		return safeDefault("")
	}
	if result.Inputs == nil {
		result.Inputs = map[string]interface{}{}
	}

	return repair(result, flows)
}

// repair is the deterministic correctness pass over the collaborator output.
func repair(result Result, flows []flow.Flow) Result {
	matched, ok := flow.Find(flows, result.FlowName)
	if !ok {
		if result.FlowName != "" {
			logger.Debug("classifier named a flow outside the catalog",
				zap.String("flow_name", result.FlowName))
		}
		result.FlowName = ""
		result.Inputs = map[string]interface{}{}
	}

	if result.FlowName != "" {
		// Missing-input detection is recomputed locally so completeness
		// does not depend on the collaborator getting it right.
		if missing := matched.MissingRequired(result.Inputs); len(missing) > 0 {
			result.Corrections = "Missing required input: " + strings.Join(missing, ", ")
		} else {
			result.Corrections = ""
		}
		result.ForwardToChat = false
	}

	if result.FlowName == "" && result.Corrections == "" {
		result.ForwardToChat = true
	}

	return result
}

func safeDefault(corrections string) Result {
	return Result{
		FlowName:      "",
		Inputs:        map[string]interface{}{},
		Corrections:   corrections,
		ForwardToChat: true,
	}
}

// stripFences drops a markdown code fence if the collaborator wrapped its
// JSON in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
