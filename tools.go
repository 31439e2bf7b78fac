package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// defineMCPTools defines the available MCP tools
func defineMCPTools() []MCPTool {
	return []MCPTool{
		{
			Name: "get_user",
			Description: "Get authenticated user's profile and body measurements. " +
				"Returns profile (user_id, email, first_name, last_name) and body_measurement " +
				"(height_meter, weight_kilogram, max_heart_rate in BPM).",
			InputSchema: MCPInputSchema{
				Type:       "object",
				Properties: map[string]interface{}{},
			},
		},
		{
			Name: "get_cycles",
			Description: "Get collection of physiological cycles. Cycles represent 24-hour periods starting from sleep, " +
				"containing strain, recovery, and sleep data. start/end are shown in the user's timezone at that location " +
				"(e.g. '2024-01-15 07:00 AM (-08:00)'); duration_hours is null if the cycle hasn't ended. " +
				"date, weekday and is_weekend are based on end time, falling back to start if ongoing.",
			InputSchema: collectionSchema(),
		},
		{
			Name: "get_cycle",
			Description: "Get single cycle by ID with optional related data. include_sleep returns only the PRIMARY sleep; " +
				"use get_sleeps for all sessions including naps.",
			InputSchema: MCPInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"cycle_id": map[string]interface{}{
						"type":        "integer",
						"description": "The cycle ID",
					},
					"include_sleep": map[string]interface{}{
						"type":        "boolean",
						"description": "Include PRIMARY sleep for this cycle",
					},
					"include_recovery": map[string]interface{}{
						"type":        "boolean",
						"description": "Include recovery data for this cycle",
					},
				},
				Required: []string{"cycle_id"},
			},
		},
		{
			Name: "get_sleeps",
			Description: "Get collection of sleep sessions, including both primary sleep and naps. " +
				"All durations are in milliseconds, respiratory_rate in breaths per minute, percentages on a 0-100 scale.",
			InputSchema: collectionSchema(),
		},
		{
			Name:        "get_sleep",
			Description: "Get single sleep session by UUID with stage summary and scores.",
			InputSchema: idSchema("sleep_id", "The sleep session UUID"),
		},
		{
			Name: "get_recoveries",
			Description: "Get collection of recovery records. recovery_score is 0-100% (green 67-100, yellow 34-66, red 0-33); " +
				"resting_heart_rate in BPM, hrv_rmssd_milli in milliseconds, spo2_percentage 0-100, skin_temp_celsius in Celsius.",
			InputSchema: collectionSchema(),
		},
		{
			Name:        "get_recovery",
			Description: "Get recovery for a specific cycle.",
			InputSchema: MCPInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"cycle_id": map[string]interface{}{
						"type":        "integer",
						"description": "The cycle ID to get recovery for",
					},
				},
				Required: []string{"cycle_id"},
			},
		},
		{
			Name: "get_workouts",
			Description: "Get collection of workout records for all activities tracked by WHOOP. " +
				"strain is on a 0-21 scale, kilojoule is energy in kJ, distances and altitude in meters, zone durations in milliseconds.",
			InputSchema: collectionSchema(),
		},
		{
			Name:        "get_workout",
			Description: "Get single workout by UUID with scores and heart rate zone durations.",
			InputSchema: idSchema("workout_id", "The workout UUID"),
		},
	}
}

func collectionSchema() MCPInputSchema {
	return MCPInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"start": map[string]interface{}{
				"type":        "string",
				"description": "Start datetime (ISO 8601, e.g. 2024-01-01T00:00:00Z)",
			},
			"end": map[string]interface{}{
				"type":        "string",
				"description": "End datetime (ISO 8601)",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": fmt.Sprintf("Max records to return (default %d, max %d)", DefaultLimit, MaxLimit),
				"minimum":     0,
				"maximum":     MaxLimit,
			},
			"next_token": map[string]interface{}{
				"type":        "string",
				"description": "Resume from the next_token of a previous truncated response",
			},
		},
	}
}

func idSchema(name, description string) MCPInputSchema {
	return MCPInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			name: map[string]interface{}{
				"type":        "string",
				"format":      "uuid",
				"description": description,
			},
		},
		Required: []string{name},
	}
}

// executeTool executes a specific tool with the given arguments
func (s *MCPServer) executeTool(ctx context.Context, toolName string, arguments json.RawMessage) (toolResult, error) {
	switch toolName {
	case "get_user":
		return s.respond(s.fetchUser(ctx))
	case "get_cycles":
		return s.executeCollectionTool(ctx, "/v2/cycle", arguments)
	case "get_cycle":
		return s.executeCycleTool(ctx, arguments)
	case "get_sleeps":
		return s.executeCollectionTool(ctx, "/v2/activity/sleep", arguments)
	case "get_sleep":
		var input SleepInput
		if err := decodeArguments(arguments, &input); err != nil {
			return toolResult{}, err
		}
		id, err := parseUUIDArg("sleep_id", input.SleepID)
		if err != nil {
			return toolResult{}, err
		}
		return s.respond(s.fetchRecord(ctx, "/v2/activity/sleep/"+id))
	case "get_recoveries":
		return s.executeCollectionTool(ctx, "/v2/recovery", arguments)
	case "get_recovery":
		var input CycleInput
		if err := decodeArguments(arguments, &input); err != nil {
			return toolResult{}, err
		}
		if input.CycleID <= 0 {
			return toolResult{}, fmt.Errorf("%w: cycle_id must be a positive integer", errInvalidArguments)
		}
		return s.respond(s.fetchRecord(ctx, cyclePath(input.CycleID)+"/recovery"))
	case "get_workouts":
		return s.executeCollectionTool(ctx, "/v2/activity/workout", arguments)
	case "get_workout":
		var input WorkoutInput
		if err := decodeArguments(arguments, &input); err != nil {
			return toolResult{}, err
		}
		id, err := parseUUIDArg("workout_id", input.WorkoutID)
		if err != nil {
			return toolResult{}, err
		}
		return s.respond(s.fetchRecord(ctx, "/v2/activity/workout/"+id))
	default:
		return toolResult{}, fmt.Errorf("%w: unknown tool: %s", errInvalidArguments, toolName)
	}
}

// executeCollectionTool implements the paginated list tools
func (s *MCPServer) executeCollectionTool(ctx context.Context, path string, arguments json.RawMessage) (toolResult, error) {
	var input CollectionInput
	if err := decodeArguments(arguments, &input); err != nil {
		return toolResult{}, err
	}

	limit := DefaultLimit
	if input.Limit != nil {
		limit = *input.Limit
	}

	params := url.Values{}
	if input.Start != "" {
		params.Set("start", input.Start)
	}
	if input.End != "" {
		params.Set("end", input.End)
	}
	if input.NextToken != "" {
		params.Set("nextToken", input.NextToken)
	}

	page, err := s.whoopClient.GetPaginated(ctx, path, params, limit)
	if err != nil {
		return s.respond(nil, err)
	}
	return s.respond(NormalizePage(page), nil)
}

// executeCycleTool implements get_cycle with its optional related records
func (s *MCPServer) executeCycleTool(ctx context.Context, arguments json.RawMessage) (toolResult, error) {
	var input CycleInput
	if err := decodeArguments(arguments, &input); err != nil {
		return toolResult{}, err
	}
	if input.CycleID <= 0 {
		return toolResult{}, fmt.Errorf("%w: cycle_id must be a positive integer", errInvalidArguments)
	}

	path := cyclePath(input.CycleID)
	cycle, err := s.fetchRecord(ctx, path)
	if err != nil {
		return s.respond(nil, err)
	}
	result := map[string]interface{}{"cycle": cycle}

	if input.IncludeSleep {
		sleep, err := s.fetchOptional(ctx, path+"/sleep")
		if err != nil {
			return s.respond(nil, err)
		}
		result["sleep"] = sleep
	}

	if input.IncludeRecovery {
		recovery, err := s.fetchOptional(ctx, path+"/recovery")
		if err != nil {
			return s.respond(nil, err)
		}
		result["recovery"] = recovery
	}

	return s.respond(result, nil)
}

// fetchUser combines the basic profile and body measurements.
func (s *MCPServer) fetchUser(ctx context.Context) (map[string]interface{}, error) {
	profile, err := s.whoopClient.Get(ctx, "/v2/user/profile/basic", nil)
	if err != nil {
		return nil, err
	}
	body, err := s.whoopClient.Get(ctx, "/v2/user/measurement/body", nil)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"profile": profile, "body_measurement": body}, nil
}

// fetchRecord gets a single record and normalizes its timestamps.
func (s *MCPServer) fetchRecord(ctx context.Context, path string) (Record, error) {
	rec, err := s.whoopClient.Get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return NormalizeEnvelope(rec), nil
}

// fetchOptional is fetchRecord with 404 mapped to a nil record.
func (s *MCPServer) fetchOptional(ctx context.Context, path string) (Record, error) {
	rec, err := s.fetchRecord(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// respond serializes data, or turns an API failure into an error envelope
// the caller can read.
func (s *MCPServer) respond(data interface{}, err error) (toolResult, error) {
	if err != nil {
		var apiErr *APIError
		var transportErr *TransportError
		switch {
		case errors.As(err, &apiErr):
			s.log.WithField("status", apiErr.StatusCode).WithField("path", apiErr.Path).Warn(apiErr.Message)
			return envelopeResult(ErrorEnvelope{Error: apiErr.Message, StatusCode: apiErr.StatusCode})
		case errors.As(err, &transportErr):
			s.log.WithError(transportErr.Err).WithField("path", transportErr.Path).Warn("whoop request failed")
			return envelopeResult(ErrorEnvelope{Error: transportErr.Error()})
		default:
			return toolResult{}, err
		}
	}

	text, err := marshalText(data)
	if err != nil {
		return toolResult{}, err
	}
	return toolResult{Text: text}, nil
}

func envelopeResult(envelope ErrorEnvelope) (toolResult, error) {
	text, err := marshalText(envelope)
	if err != nil {
		return toolResult{}, err
	}
	return toolResult{Text: text, IsError: true}, nil
}

func decodeArguments(arguments json.RawMessage, v interface{}) error {
	if len(arguments) == 0 || string(arguments) == "null" {
		return nil
	}
	if err := json.Unmarshal(arguments, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArguments, err)
	}
	return nil
}

func parseUUIDArg(name, value string) (string, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return "", fmt.Errorf("%w: %s must be a valid UUID", errInvalidArguments, name)
	}
	return id.String(), nil
}

func cyclePath(id int64) string {
	return "/v2/cycle/" + strconv.FormatInt(id, 10)
}
