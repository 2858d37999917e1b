package main

import (
	"github.com/liamcoop/formrules/registry"
	"github.com/liamcoop/formrules/rules"
	"github.com/liamcoop/formrules/sandbox"
)

// API request and response models

// FormsListResponse represents the response for listing forms
type FormsListResponse struct {
	Forms []string `json:"forms" example:"loan,contact"`
} // @name FormsListResponse

// UpdateSchemaRequest represents the request body for replacing a form's base schema
type UpdateSchemaRequest struct {
	Schema map[string]any `json:"schema" binding:"required"`
} // @name UpdateSchemaRequest

// UpdateSchemaResponse reports the rules carried over to the rebuilt form
type UpdateSchemaResponse struct {
	Status          string `json:"status" example:"active"`
	RulesRecompiled int    `json:"rulesRecompiled" example:"12"`
} // @name UpdateSchemaResponse

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []rules.FieldRule `json:"rules"`
} // @name RulesListResponse

// FormDataRequest carries a form data snapshot
type FormDataRequest struct {
	FormData map[string]any `json:"formData"`
} // @name FormDataRequest

// EvaluateRequest represents the request body for evaluating a form's rules
type EvaluateRequest struct {
	FormData     map[string]any `json:"formData"`
	ChangedField string         `json:"changedField,omitempty" example:"country"`
} // @name EvaluateRequest

// EvaluateResponse represents the response for rule evaluation
type EvaluateResponse struct {
	*rules.RuleEvaluationResult
	EvaluationTime string `json:"evaluationTime" example:"2.3ms"`
} // @name EvaluateResponse

// FieldStateRequest asks for the computed state of one field
type FieldStateRequest struct {
	Field    string         `json:"field" example:"address.province" binding:"required"`
	FormData map[string]any `json:"formData"`
} // @name FieldStateRequest

// FieldStateResponse represents one field's computed state
type FieldStateResponse struct {
	Field string           `json:"field"`
	State rules.FieldState `json:"state"`
} // @name FieldStateResponse

// SchemaResponse represents a rule-modified schema
type SchemaResponse struct {
	Schema map[string]any `json:"schema"`
} // @name SchemaResponse

// ValidateResponse represents form data validation results
type ValidateResponse struct {
	Valid      bool                      `json:"valid" example:"false"`
	Violations []registry.FieldViolation `json:"violations"`
} // @name ValidateResponse

// ExecuteScriptRequest represents the request body for running a script
type ExecuteScriptRequest struct {
	ScriptID string         `json:"scriptId" example:"greet" binding:"required"`
	Code     string         `json:"code" example:"result = utils.upper(payload.name);" binding:"required"`
	Payload  map[string]any `json:"payload,omitempty"`
} // @name ExecuteScriptRequest

// ValidateScriptRequest represents the request body for checking a script
type ValidateScriptRequest struct {
	Code string `json:"code" example:"result = {};" binding:"required"`
} // @name ValidateScriptRequest

// ScriptResponse wraps a script execution result
type ScriptResponse struct {
	*sandbox.ScriptExecutionResult
	Code string `json:"code,omitempty" example:"ERR_SCRIPT_TIMEOUT"`
} // @name ScriptResponse

// ActiveScriptsResponse reports in-flight executions
type ActiveScriptsResponse struct {
	Active int `json:"active" example:"0"`
} // @name ActiveScriptsResponse

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"form not found"`
	Details string `json:"details,omitempty"`
} // @name ErrorResponse

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status" example:"healthy"`
	FormsLoaded int    `json:"formsLoaded" example:"3"`
} // @name HealthResponse
