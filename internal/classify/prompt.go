package classify

import (
	"fmt"
)

const systemPrompt = "You are an expert in operating SaaS tools and their workflows."

const promptTemplate = `# SaaS Query Classification

You are an expert in operating SaaS tools and their workflows.

Given here are some **flow name**, **description**, and **inputs** (optional & required) which can be executed on the user's command. A user will give a query that may or may not be used to execute one of the flows.

Your task:

1. **If the query is about executing some flow**
   - Select that flow.
   - Check if all the **required** inputs are present.
   - If all required inputs are present, return the flow_name and extracted inputs.
   - If some required inputs are missing, return a "corrections" message mentioning which inputs are missing so that the user can provide them.
   - Optional inputs can be omitted if not present in the query.

2. **If the query is not referring to any of the mentioned flows**, set "forward_to_chat": true to forward the query to a QnA agent.

Respond with a single JSON object:

{"flow_name": "<flow name or empty>", "inputs": {"<key>": "<value>"}, "corrections": "<missing input message or empty>", "forward_to_chat": <bool>}

## Examples

Flows:
1. name: Create Contact
   description: Creates a new contact record in the CRM.
   inputs:
       - first_name: string, required
       - last_name: string, required
       - email: string, required
       - phone: string, required

User query: Add a contact named Sarah Connor with email sarah.connor@example.com

Output: {"flow_name": "Create Contact", "inputs": {"first_name": "Sarah", "last_name": "Connor", "email": "sarah.connor@example.com"}, "corrections": "Missing required input: phone", "forward_to_chat": false}

Flows:
1. name: Deploy Service
   description: Deploys a service to the specified environment.
   inputs:
       - service_name: string, required
       - environment: string, required
       - version: string, required

User query: Can you deploy the payment-service to staging with version 2.3.1?

Output: {"flow_name": "Deploy Service", "inputs": {"service_name": "payment-service", "environment": "staging", "version": "2.3.1"}, "corrections": "", "forward_to_chat": false}

User query: How do I integrate this CRM with Google Sheets?

Output: {"flow_name": "", "inputs": {}, "corrections": "", "forward_to_chat": true}

## Input

**Flows:**
%s

**User Query:**
%s

## Output
`

func buildPrompt(query, catalog string) string {
	return fmt.Sprintf(promptTemplate, catalog, query)
}
