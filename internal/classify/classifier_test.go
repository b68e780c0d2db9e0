package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowvana/backend/internal/flow"
)

type fakeCompleter struct {
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _, _, userPrompt string) (string, error) {
	f.prompt = userPrompt
	return f.response, f.err
}

func contactFlows() []flow.Flow {
	return []flow.Flow{
		{
			Name:        "add_contact",
			Description: "Create a new contact",
			Inputs: map[string]flow.InputSpec{
				"first_name": {Type: flow.TypeString, Required: true},
				"phone":      {Type: flow.TypeString, Required: true},
				"nickname":   {Type: flow.TypeString, Required: false},
			},
		},
		{
			Name:        "delete_contact",
			Description: "Remove an existing contact",
			Inputs: map[string]flow.InputSpec{
				"contact_id": {Type: flow.TypeString, Required: true},
			},
		},
	}
}

func TestClassifyMissingInputCompleteness(t *testing.T) {
	// The collaborator extracted first_name but skipped phone and reported
	// nothing missing. The local pass must flag phone and only phone.
	completer := &fakeCompleter{
		response: `{"flow_name":"add_contact","inputs":{"first_name":"Sam"},"corrections":"","forward_to_chat":false}`,
	}
	c := New(completer, "test-model", time.Second)

	result := c.Classify(context.Background(), "add contact named Sam", contactFlows())

	assert.Equal(t, "add_contact", result.FlowName)
	assert.Contains(t, result.Corrections, "phone")
	assert.NotContains(t, result.Corrections, "first_name")
	assert.False(t, result.ForwardToChat)
}

func TestClassifyCompleteInputsClearCorrections(t *testing.T) {
	// A stale corrections string from the collaborator is discarded when all
	// required inputs are present.
	completer := &fakeCompleter{
		response: `{"flow_name":"add_contact","inputs":{"first_name":"Sam","phone":"555-0101"},"corrections":"Missing required input: phone","forward_to_chat":true}`,
	}
	c := New(completer, "test-model", time.Second)

	result := c.Classify(context.Background(), "add Sam with phone 555-0101", contactFlows())

	assert.Equal(t, "add_contact", result.FlowName)
	assert.Empty(t, result.Corrections)
	assert.False(t, result.ForwardToChat)
}

func TestClassifyCatalogIntegrity(t *testing.T) {
	// A flow name outside the caller's catalog is never surfaced.
	completer := &fakeCompleter{
		response: `{"flow_name":"launch_rocket","inputs":{"target":"moon"},"corrections":"","forward_to_chat":false}`,
	}
	c := New(completer, "test-model", time.Second)

	result := c.Classify(context.Background(), "launch the rocket", contactFlows())

	assert.Empty(t, result.FlowName)
	assert.Empty(t, result.Inputs)
	assert.True(t, result.ForwardToChat)
}

func TestClassifyEmptyCatalog(t *testing.T) {
	completer := &fakeCompleter{
		response: `{"flow_name":"add_contact","inputs":{"first_name":"Sam"},"corrections":"","forward_to_chat":false}`,
	}
	c := New(completer, "test-model", time.Second)

	result := c.Classify(context.Background(), "add contact named Sam", nil)

	assert.Empty(t, result.FlowName)
	assert.True(t, result.ForwardToChat)
}

func TestClassifyMalformedJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"truncated object", `{"flow_name":"add_contact","inputs":`},
		{"prose instead of JSON", `Sure! The flow is add_contact.`},
		{"empty response", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&fakeCompleter{response: tt.response}, "test-model", time.Second)

			result := c.Classify(context.Background(), "add a contact", contactFlows())

			assert.Empty(t, result.FlowName)
			assert.Empty(t, result.Corrections)
			assert.NotNil(t, result.Inputs)
			assert.True(t, result.ForwardToChat)
		})
	}
}

func TestClassifyFencedJSON(t *testing.T) {
	completer := &fakeCompleter{
		response: "```json\n{\"flow_name\":\"delete_contact\",\"inputs\":{\"contact_id\":\"c-42\"},\"corrections\":\"\",\"forward_to_chat\":false}\n```",
	}
	c := New(completer, "test-model", time.Second)

	result := c.Classify(context.Background(), "delete contact c-42", contactFlows())

	assert.Equal(t, "delete_contact", result.FlowName)
	assert.Equal(t, "c-42", result.Inputs["contact_id"])
	assert.False(t, result.ForwardToChat)
}

func TestClassifyGatewayError(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("upstream timeout")}
	c := New(completer, "test-model", time.Second)

	result := c.Classify(context.Background(), "add a contact", contactFlows())

	assert.Empty(t, result.FlowName)
	assert.Contains(t, result.Corrections, "upstream timeout")
	assert.True(t, result.ForwardToChat)
}

func TestClassifyPromptCarriesCatalogAndQuery(t *testing.T) {
	completer := &fakeCompleter{
		response: `{"flow_name":"","inputs":{},"corrections":"","forward_to_chat":true}`,
	}
	c := New(completer, "test-model", time.Second)

	c.Classify(context.Background(), "how do I add someone", contactFlows())

	assert.Contains(t, completer.prompt, "how do I add someone")
	assert.Contains(t, completer.prompt, "add_contact")
	assert.Contains(t, completer.prompt, "delete_contact")
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripFences(tt.in))
		})
	}
}
