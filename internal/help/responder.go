package help

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/flow"
	"github.com/flowvana/backend/internal/llm"
	"github.com/flowvana/backend/internal/storage/models"
	"github.com/flowvana/backend/pkg/logger"
)

const systemPrompt = "You are a helpful assistant at Flowvana that helps users navigate SaaS apps and trigger workflows."

const promptTemplate = `You are a helpful assistant at Flowvana.
Flowvana helps users navigate any SaaS app and trigger well defined workflows in that app.
Users can navigate to any page in the app by typing keywords about that page and selecting from the suggestions.
Here is the list of navigations available:
%s
For triggering a workflow, the user can express an intent with all required inputs and you can trigger that workflow.
Here are the available workflows:
%s
The user is asking a query; respond keeping the above scope in mind. Tell them politely that you can help with navigation and workflow execution, and not anything else.
User's query:
%s`

// Completer is the help generation collaborator contract.
type Completer interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// Responder produces the natural-language fallback answer scoped to
// navigation and workflow help. It never fails: gateway problems become an
// apologetic canned answer.
type Responder struct {
	completer Completer
	model     string
	timeout   time.Duration
}

func NewResponder(completer Completer, model string, timeout time.Duration) *Responder {
	return &Responder{completer: completer, model: model, timeout: timeout}
}

func (r *Responder) Generate(ctx context.Context, navigations []models.Navigation, flows []flow.Flow, query string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := fmt.Sprintf(promptTemplate, formatNavigations(navigations), formatFlows(flows), query)

	answer, err := r.completer.Complete(ctx, r.model, systemPrompt, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return "I'm sorry, but I'm unable to process your request at the moment due to a configuration issue."
		}
		logger.Warn("help generation failed", zap.Error(err))
		return "I'm sorry, but I'm unable to generate a response at the moment. Please try again later."
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "I'm sorry, but I'm unable to generate a response at the moment. Please try again later."
	}
	return answer
}

func formatNavigations(navigations []models.Navigation) string {
	if len(navigations) == 0 {
		return "No navigations available at the moment.\n"
	}
	var b strings.Builder
	for i, nav := range navigations {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n\n", i+1, nav.Title, nav.URL)
	}
	return b.String()
}

func formatFlows(flows []flow.Flow) string {
	if len(flows) == 0 {
		return "No workflows available at the moment.\n"
	}
	var b strings.Builder
	for i, f := range flows {
		fmt.Fprintf(&b, "%d. %s\n   Description: %s\n\n", i+1, f.Name, f.Description)
	}
	return b.String()
}
