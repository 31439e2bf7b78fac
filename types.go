package main

import (
	"encoding/json"
)

// MCP Protocol Types
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type MCPTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema MCPInputSchema `json:"inputSchema"`
}

type MCPInputSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

type MCPResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// JSON-RPC error codes
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeNotInitialized = -32002
)

// Tool Input Types
type CollectionInput struct {
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
	NextToken string `json:"next_token,omitempty"`
}

type CycleInput struct {
	CycleID         int64 `json:"cycle_id"`
	IncludeSleep    bool  `json:"include_sleep,omitempty"`
	IncludeRecovery bool  `json:"include_recovery,omitempty"`
}

type SleepInput struct {
	SleepID string `json:"sleep_id"`
}

type WorkoutInput struct {
	WorkoutID string `json:"workout_id"`
}

// ErrorEnvelope is returned to the tool caller in place of data when the API fails.
type ErrorEnvelope struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code,omitempty"`
}
