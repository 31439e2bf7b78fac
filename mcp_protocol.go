package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "whoop-mcp-server"
	serverVersion   = "2.0.0"
)

// errInvalidArguments marks tool calls rejected before any API request is made.
var errInvalidArguments = errors.New("invalid arguments")

// MCPServer handles the Model Context Protocol communication
type MCPServer struct {
	whoopClient *WhoopClient
	oauthConfig map[string]interface{}
	tools       []MCPTool
	resources   []MCPResource
	log         logrus.FieldLogger
}

// session is the protocol state of one connected peer.
type session struct {
	mu          sync.RWMutex
	initialized bool
}

func (s *session) markInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
}

func (s *session) isInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// toolResult is the text payload of a tools/call response.
type toolResult struct {
	Text    string
	IsError bool
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(whoopClient *WhoopClient, cfg Config, logger logrus.FieldLogger) *MCPServer {
	return &MCPServer{
		whoopClient: whoopClient,
		oauthConfig: map[string]interface{}{
			"authorization_url": cfg.AuthURL,
			"token_url":         cfg.TokenURL,
			"redirect_uri":      oauthRedirectURI,
			"scopes":            oauthScopes,
			"refresh_enabled":   whoopClient.CanRefresh(),
		},
		tools:     defineMCPTools(),
		resources: defineMCPResources(),
		log:       logger,
	}
}

// Run serves newline-delimited JSON-RPC from in to out until in is exhausted
// or ctx is cancelled.
func (s *MCPServer) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	sess := &session{}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if response := s.HandleMessage(ctx, sess, line); response != nil {
			s.writeMessage(out, response)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading from stdin: %w", err)
	}

	return nil
}

// HandleMessage processes one JSON-RPC message. It returns nil for notifications.
func (s *MCPServer) HandleMessage(ctx context.Context, sess *session, data []byte) *MCPResponse {
	var request MCPRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return errorResponse(nil, codeParseError, "Parse error", err.Error())
	}

	response := s.handleRequest(ctx, sess, &request)
	if request.ID == nil {
		return nil
	}
	return response
}

// handleRequest processes incoming MCP requests
func (s *MCPServer) handleRequest(ctx context.Context, sess *session, request *MCPRequest) *MCPResponse {
	if strings.HasPrefix(request.Method, "notifications/") {
		return nil
	}

	switch request.Method {
	case "initialize":
		return s.handleInitialize(sess, request)
	case "ping":
		return resultResponse(request.ID, map[string]interface{}{})
	}

	if !sess.isInitialized() {
		return errorResponse(request.ID, codeNotInitialized, "Not initialized", "Server not initialized")
	}

	switch request.Method {
	case "tools/list":
		return resultResponse(request.ID, map[string]interface{}{"tools": s.tools})
	case "tools/call":
		return s.handleToolsCall(ctx, request)
	case "resources/list":
		return resultResponse(request.ID, map[string]interface{}{"resources": s.resources})
	case "resources/read":
		return s.handleResourcesRead(ctx, request)
	default:
		return errorResponse(request.ID, codeMethodNotFound, "Method not found", fmt.Sprintf("Unknown method: %s", request.Method))
	}
}

// handleInitialize processes the initialize request
func (s *MCPServer) handleInitialize(sess *session, request *MCPRequest) *MCPResponse {
	sess.markInitialized()

	return resultResponse(request.ID, map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    serverName,
			"version": serverVersion,
		},
		"instructions": "MCP server for WHOOP wearable health data",
	})
}

// handleToolsCall executes a tool call
func (s *MCPServer) handleToolsCall(ctx context.Context, request *MCPRequest) *MCPResponse {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(request.Params, &params); err != nil {
		return errorResponse(request.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	logger := s.log.WithField("tool", params.Name)
	logger.Debug("tool call")

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, errInvalidArguments) {
			return errorResponse(request.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		logger.WithError(err).Error("tool call failed")
		return errorResponse(request.ID, codeInternalError, "Internal error", err.Error())
	}

	return resultResponse(request.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": result.Text,
			},
		},
		"isError": result.IsError,
	})
}

// handleResourcesRead reads a specific resource
func (s *MCPServer) handleResourcesRead(ctx context.Context, request *MCPRequest) *MCPResponse {
	var params struct {
		URI string `json:"uri"`
	}

	if err := json.Unmarshal(request.Params, &params); err != nil {
		return errorResponse(request.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	content, err := s.readResource(ctx, params.URI)
	if err != nil {
		if errors.Is(err, errInvalidArguments) {
			return errorResponse(request.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		return errorResponse(request.ID, codeInternalError, "Internal error", err.Error())
	}

	return resultResponse(request.ID, map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      params.URI,
				"mimeType": "application/json",
				"text":     content,
			},
		},
	})
}

// defineMCPResources defines the available MCP resources
func defineMCPResources() []MCPResource {
	return []MCPResource{
		{
			URI:         "whoop://user/profile",
			Name:        "User Profile",
			Description: "Basic profile and body measurements of the authenticated user",
			MimeType:    "application/json",
		},
		{
			URI:         "whoop://oauth/config",
			Name:        "WHOOP OAuth Configuration",
			Description: "OAuth endpoints and scopes used to authorize this server",
			MimeType:    "application/json",
		},
	}
}

// readResource returns the JSON text of a resource.
func (s *MCPServer) readResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "whoop://user/profile":
		user, err := s.fetchUser(ctx)
		if err != nil {
			return "", err
		}
		return marshalText(user)
	case "whoop://oauth/config":
		return marshalText(s.oauthConfig)
	default:
		return "", fmt.Errorf("%w: unknown resource %s", errInvalidArguments, uri)
	}
}

func resultResponse(id interface{}, result interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

func errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// writeMessage writes one newline-terminated message to out
func (s *MCPServer) writeMessage(out io.Writer, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		s.log.WithError(err).Error("error marshaling message")
		return
	}

	if _, err := fmt.Fprintf(out, "%s\n", data); err != nil {
		s.log.WithError(err).Error("error writing message")
	}
}

func marshalText(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize result: %w", err)
	}
	return string(data), nil
}
