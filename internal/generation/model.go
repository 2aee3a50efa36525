package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/antigravity-dev/studybuddy/internal/ports"
)

// MCPModelClient is the concrete ports.ModelClient adapter that reaches the
// language model as an MCP tool call over a subprocess transport, mirroring
// how this codebase's own MCP integrations dial a server and call a tool
// rather than hand-rolling a model-specific HTTP client.
type MCPModelClient struct {
	command   string
	args      []string
	toolName  string
	clientImp *mcp.Implementation
}

// NewMCPModelClient builds an adapter that launches command/args as an MCP
// server subprocess and invokes toolName for every request.
func NewMCPModelClient(command, toolName string, args ...string) *MCPModelClient {
	return &MCPModelClient{
		command:  command,
		args:     args,
		toolName: toolName,
		clientImp: &mcp.Implementation{
			Name:    "studybuddy-generation",
			Version: "1.0.0",
		},
	}
}

type modelToolRequest struct {
	SystemPrompt string            `json:"systemPrompt"`
	UserPrompt   string            `json:"userPrompt"`
	MaxTokens    int               `json:"maxTokens"`
	Documents    map[string]string `json:"documents,omitempty"` // filename -> base64
	Guardrail    *ports.GuardrailConfig `json:"guardrail,omitempty"`
}

func (c *MCPModelClient) callTool(ctx context.Context, req modelToolRequest) (string, bool, error) {
	client := mcp.NewClient(c.clientImp, nil)
	transport := mcp.NewCommandTransport(exec.CommandContext(ctx, c.command, c.args...))

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return "", false, fmt.Errorf("generation: connect to model mcp server: %w", err)
	}
	defer session.Close()

	args, err := structToMap(req)
	if err != nil {
		return "", false, fmt.Errorf("generation: marshal model request: %w", err)
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      c.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", false, fmt.Errorf("generation: invoke model tool: %w", err)
	}

	text := firstTextContent(result)
	if guardrailIntervened(toolResultEnvelope(result)) {
		return text, true, nil
	}
	return text, false, nil
}

func (c *MCPModelClient) InvokeJSON(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, guardrail *ports.GuardrailConfig) (string, bool, error) {
	return c.callTool(ctx, modelToolRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    maxTokens,
		Guardrail:    guardrail,
	})
}

func (c *MCPModelClient) InvokeMultimodalJSON(ctx context.Context, systemPrompt, userPrompt string, documents map[string][]byte, maxTokens int, guardrail *ports.GuardrailConfig) (string, bool, error) {
	encoded := make(map[string]string, len(documents))
	for name, data := range documents {
		encoded[name] = base64.StdEncoding.EncodeToString(data)
	}
	return c.callTool(ctx, modelToolRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    maxTokens,
		Documents:    encoded,
		Guardrail:    guardrail,
	})
}

func (c *MCPModelClient) RetrieveAndGenerate(ctx context.Context, filterCourseID, question string, guardrail *ports.GuardrailConfig) (string, []string, bool, error) {
	client := mcp.NewClient(c.clientImp, nil)
	transport := mcp.NewCommandTransport(exec.CommandContext(ctx, c.command, c.args...))

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return "", nil, false, fmt.Errorf("generation: connect to model mcp server: %w", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "retrieve_and_generate",
		Arguments: map[string]any{
			"filterCourseId": filterCourseID,
			"question":       question,
			"guardrail":      guardrail,
		},
	})
	if err != nil {
		return "", nil, false, fmt.Errorf("generation: invoke retrieve-and-generate tool: %w", err)
	}

	envelope := toolResultEnvelope(result)
	answer := firstTextContent(result)
	citations := citationsFromEnvelope(envelope)
	return answer, citations, guardrailIntervened(envelope), nil
}

var _ ports.ModelClient = (*MCPModelClient)(nil)

func structToMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func firstTextContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// toolResultEnvelope extracts result.StructuredContent as a generic map, so
// guardrailIntervened/citationsFromEnvelope can inspect it the same way
// regardless of the underlying model provider's response shape.
func toolResultEnvelope(result *mcp.CallToolResult) map[string]any {
	if result == nil || result.StructuredContent == nil {
		return nil
	}
	m, _ := result.StructuredContent.(map[string]any)
	return m
}

// guardrailIntervened reports whether envelope (or its nested "output" key)
// carries any recognized guardrail-intervened marker: a guardrailAction (or
// amazon-bedrock-guardrailAction) of "INTERVENED", or a stop_reason/
// stopReason mentioning "guardrail".
func guardrailIntervened(envelope map[string]any) bool {
	if envelope == nil {
		return false
	}
	if checkGuardrailMarkers(envelope) {
		return true
	}
	if output, ok := envelope["output"].(map[string]any); ok {
		return checkGuardrailMarkers(output)
	}
	return false
}

func checkGuardrailMarkers(m map[string]any) bool {
	for _, key := range []string{"guardrailAction", "amazon-bedrock-guardrailAction"} {
		if v, ok := m[key].(string); ok && strings.EqualFold(v, "INTERVENED") {
			return true
		}
	}
	for _, key := range []string{"stop_reason", "stopReason"} {
		if v, ok := m[key].(string); ok && strings.Contains(strings.ToLower(v), "guardrail") {
			return true
		}
	}
	return false
}

func citationsFromEnvelope(envelope map[string]any) []string {
	if envelope == nil {
		return nil
	}
	raw, ok := envelope["citations"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if src, ok := v["source"].(string); ok {
				out = append(out, src)
			}
		}
	}
	return out
}
