package api

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request body schemas, validated before any handler logic runs. Shape errors
// surface as 400 with the validator's message; semantic rules (rune counts,
// policy) stay in the domain packages.
const (
	claimSubmissionSchema = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["item_id", "proof_description"],
		"additionalProperties": false,
		"properties": {
			"item_id": {"type": "string", "minLength": 1},
			"proof_description": {"type": "string", "minLength": 1}
		}
	}`

	claimDecisionSchema = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["action"],
		"additionalProperties": false,
		"properties": {
			"action": {"type": "string", "enum": ["approve", "reject", "complete"]},
			"admin_notes": {"type": "string"}
		}
	}`

	postSchema = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["body"],
		"additionalProperties": false,
		"properties": {
			"body": {"type": "string", "minLength": 1}
		}
	}`
)

// Validator holds the compiled request schemas.
type Validator struct {
	claimSubmission *jsonschema.Schema
	claimDecision   *jsonschema.Schema
	post            *jsonschema.Schema
}

// NewValidator compiles all request schemas.
func NewValidator() (*Validator, error) {
	v := &Validator{}
	var err error
	if v.claimSubmission, err = compileSchema("claim-submission", claimSubmissionSchema); err != nil {
		return nil, err
	}
	if v.claimDecision, err = compileSchema("claim-decision", claimDecisionSchema); err != nil {
		return nil, err
	}
	if v.post, err = compileSchema("post", postSchema); err != nil {
		return nil, err
	}
	return v, nil
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://campuskeep.schemas.local/%s.schema.json", name)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed: %w", err)
	}
	return compiled, nil
}

// ValidateClaimSubmission checks a decoded POST /claims body.
func (v *Validator) ValidateClaimSubmission(body map[string]any) error {
	return v.claimSubmission.Validate(body)
}

// ValidateClaimDecision checks a decoded POST /claims/{id}/decide body.
func (v *Validator) ValidateClaimDecision(body map[string]any) error {
	return v.claimDecision.Validate(body)
}

// ValidatePost checks a decoded forum post or comment body.
func (v *Validator) ValidatePost(body map[string]any) error {
	return v.post.Validate(body)
}
