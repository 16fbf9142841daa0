package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownPlugin = errors.New("unknown plugin")

// Plugin names accepted by the backend.
const (
	PluginHealthcheck = "healthcheck"
	PluginSummarise   = "summariseConversation"
	PluginExport      = "exportConversation"
)

// PluginResult is the decoded output of a plugin run. The concrete type is
// chosen by plugin name: *HealthcheckResult, *SummaryResult or
// *ExportResult.
type PluginResult interface {
	Plugin() string
}

// HealthcheckResult reports backend health.
type HealthcheckResult struct {
	RunID  string
	Status string
	OK     bool
}

// SummaryResult carries a conversation summary.
type SummaryResult struct {
	RunID   string
	Summary string
}

// ExportResult carries an exported conversation transcript.
type ExportResult struct {
	RunID    string
	Text     string
	Filename string
}

func (*HealthcheckResult) Plugin() string { return PluginHealthcheck }
func (*SummaryResult) Plugin() string     { return PluginSummarise }
func (*ExportResult) Plugin() string      { return PluginExport }

// DefaultPluginArgs returns the arguments the UI sends for each plugin.
func DefaultPluginArgs(plugin, conversationID string) map[string]any {
	switch plugin {
	case PluginSummarise:
		return map[string]any{"conversationId": conversationID, "limit": 30, "saveAsMessage": false}
	case PluginExport:
		return map[string]any{"conversationId": conversationID, "limit": 200}
	}
	return map[string]any{}
}

type pluginRequest struct {
	ConversationID string         `json:"conversationId,omitempty"`
	Plugin         string         `json:"plugin"`
	Args           map[string]any `json:"args"`
}

type pluginResponse struct {
	RunID  string          `json:"runId,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// ExecutePlugin runs a backend plugin and decodes its output. A nil args
// map uses DefaultPluginArgs.
func (c *Client) ExecutePlugin(ctx context.Context, conversationID, plugin string, args map[string]any) (PluginResult, error) {
	switch plugin {
	case PluginHealthcheck, PluginSummarise, PluginExport:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, plugin)
	}
	if args == nil {
		args = DefaultPluginArgs(plugin, conversationID)
	}

	var raw json.RawMessage
	if err := c.postJSON(ctx, "/api/plugins/execute", pluginRequest{
		ConversationID: conversationID,
		Plugin:         plugin,
		Args:           args,
	}, &raw); err != nil {
		return nil, err
	}
	return decodePluginResult(plugin, conversationID, raw)
}

func decodePluginResult(plugin, conversationID string, raw json.RawMessage) (PluginResult, error) {
	var resp pluginResponse
	output := raw
	if json.Unmarshal(raw, &resp) == nil && len(resp.Output) > 0 {
		output = resp.Output
	}

	switch plugin {
	case PluginHealthcheck:
		r := &HealthcheckResult{RunID: resp.RunID}
		var s string
		if json.Unmarshal(output, &s) == nil {
			r.Status = s
		} else {
			var obj struct {
				Status string `json:"status"`
				OK     *bool  `json:"ok"`
			}
			_ = json.Unmarshal(output, &obj)
			r.Status = obj.Status
			if obj.OK != nil {
				r.OK = *obj.OK
			}
		}
		if r.Status == "ok" {
			r.OK = true
		}
		return r, nil
	case PluginSummarise:
		return &SummaryResult{
			RunID:   resp.RunID,
			Summary: outputText(output, "summary", "text", "markdown", "content"),
		}, nil
	case PluginExport:
		id := conversationID
		if id == "" {
			id = "conversation"
		}
		if len(id) > 8 {
			id = id[:8]
		}
		return &ExportResult{
			RunID:    resp.RunID,
			Text:     outputText(output, "text", "markdown", "content", "transcript"),
			Filename: "conversation-" + id + ".txt",
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, plugin)
}

// outputText returns output itself if it is a JSON string, otherwise the
// first string field among keys.
func outputText(output json.RawMessage, keys ...string) string {
	var s string
	if json.Unmarshal(output, &s) == nil {
		return s
	}
	var obj map[string]any
	if json.Unmarshal(output, &obj) != nil {
		return ""
	}
	for _, k := range keys {
		if v, ok := obj[k].(string); ok {
			return v
		}
	}
	return ""
}
