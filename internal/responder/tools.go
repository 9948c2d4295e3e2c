package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/mentorchat/internal/config"
	"github.com/comigor/mentorchat/internal/logger"
)

// MCPClient is the part of an MCP client the responder calls once tools are registered.
type MCPClient interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// promptSource is the part of an MCP client used to discover a server's system prompt.
type promptSource interface {
	ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	GetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
}

var emptySchema = json.RawMessage(`{"type": "object", "properties": {}}`)

// toolset maps tool names offered to the model onto the MCP client serving them.
// prompts holds the system prompt discovered on each server that offers one.
type toolset struct {
	clients []MCPClient
	tools   []openai.Tool
	byName  map[string]MCPClient
	prompts []string
}

func newToolset() *toolset {
	return &toolset{byName: make(map[string]MCPClient)}
}

// register offers a tool to the model. The first server to announce a name wins.
func (ts *toolset) register(name, description string, schema json.RawMessage, c MCPClient) bool {
	if _, exists := ts.byName[name]; exists {
		return false
	}
	if len(schema) == 0 {
		schema = emptySchema
	}
	ts.byName[name] = c
	ts.tools = append(ts.tools, openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
	})
	return true
}

func (ts *toolset) close() {
	for _, c := range ts.clients {
		if err := c.Close(); err != nil {
			logger.L.Warn("MCP client close error", "error", err)
		}
	}
}

// connectMCP starts every configured server and registers its tools.
// A server that fails to start is logged and skipped.
func connectMCP(ctx context.Context, servers []config.MCPServerConfig) *toolset {
	ts := newToolset()
	for _, serverCfg := range servers {
		mcpC, err := newMCPClient(serverCfg)
		if err != nil {
			logger.L.Error("Failed to create MCP client", "name", serverCfg.Name, "error", err)
			continue
		}

		if serverCfg.Type != config.ClientTypeStdio {
			if err := mcpC.Start(ctx); err != nil {
				logger.L.Error("Failed to start MCP client transport", "name", serverCfg.Name, "error", err)
				_ = mcpC.Close()
				continue
			}
		}

		initReq := mcp.InitializeRequest{
			Params: mcp.InitializeParams{
				ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
				ClientInfo:      mcp.Implementation{Name: "mentorchat", Version: "0.1.0"},
				Capabilities:    mcp.ClientCapabilities{},
			},
		}
		initResult, err := mcpC.Initialize(ctx, initReq)
		if err != nil {
			logger.L.Error("Failed to initialize MCP client", "name", serverCfg.Name, "error", err)
			_ = mcpC.Close()
			continue
		}
		ts.clients = append(ts.clients, mcpC)

		if initResult != nil && initResult.Capabilities.Prompts != nil {
			if prompt := discoverPrompt(ctx, mcpC); prompt != "" {
				ts.prompts = append(ts.prompts, prompt)
				logger.L.Info("Discovered system prompt from MCP server", "name", serverCfg.Name)
			} else {
				logger.L.Debug("Server supports prompts but offers no argument-free assistant prompt", "name", serverCfg.Name)
			}
		}

		serverTools, err := mcpC.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			logger.L.Warn("Failed to list tools for MCP client", "name", serverCfg.Name, "error", err)
			continue
		}
		for _, tool := range serverTools.Tools {
			if ts.register(tool.Name, tool.Description, toolSchema(tool), mcpC) {
				logger.L.Info("Registered tool from MCP server", "tool", tool.Name, "name", serverCfg.Name)
			} else {
				logger.L.Warn("Tool already registered from another server. Skipping.", "tool", tool.Name, "name", serverCfg.Name)
			}
		}
	}
	if len(ts.clients) == 0 && len(servers) > 0 {
		logger.L.Warn("No MCP clients were initialized despite servers configured.", "configured", len(servers))
	}
	return ts
}

// discoverPrompt returns the first assistant text of the first prompt that takes
// no arguments, or "" when there is none.
func discoverPrompt(ctx context.Context, c promptSource) string {
	prompts, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil || prompts == nil {
		if err != nil {
			logger.L.Warn("Failed to list prompts", "error", err)
		}
		return ""
	}

	i := slices.IndexFunc(prompts.Prompts, func(p mcp.Prompt) bool {
		return len(p.Arguments) == 0
	})
	if i == -1 {
		return ""
	}

	prompt, err := c.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: prompts.Prompts[i].Name},
	})
	if err != nil || prompt == nil {
		if err != nil {
			logger.L.Warn("Failed to get prompt", "prompt", prompts.Prompts[i].Name, "error", err)
		}
		return ""
	}

	for _, m := range prompt.Messages {
		if m.Role != mcp.RoleAssistant {
			continue
		}
		if text, ok := m.Content.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

func newMCPClient(serverCfg config.MCPServerConfig) (*client.Client, error) {
	switch serverCfg.Type {
	case config.ClientTypeSSE:
		var opts []transport.ClientOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(serverCfg.Headers))
		}
		return client.NewSSEMCPClient(serverCfg.URL, opts...)
	case config.ClientTypeStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(serverCfg.Headers))
		}
		return client.NewStreamableHttpClient(serverCfg.URL, opts...)
	case config.ClientTypeStdio:
		env := make([]string, 0, len(serverCfg.Env))
		for k, v := range serverCfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		return client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
	case "":
		return nil, fmt.Errorf("mcp server type not set (sse, streamable_http or stdio)")
	default:
		return nil, fmt.Errorf("unsupported mcp server type %q", serverCfg.Type)
	}
}

func toolSchema(tool mcp.Tool) json.RawMessage {
	if len(tool.RawInputSchema) > 0 && string(tool.RawInputSchema) != "null" {
		return tool.RawInputSchema
	}
	b, err := json.Marshal(tool.InputSchema)
	if err != nil || string(b) == "{}" || string(b) == "null" {
		return emptySchema
	}
	return b
}

// execute calls a tool and flattens its result to text for the model.
func (ts *toolset) execute(ctx context.Context, call openai.ToolCall) string {
	name := call.Function.Name
	c, ok := ts.byName[name]
	if !ok {
		return "Error: tool " + name + " is not available"
	}

	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			logger.L.Error("Failed to unmarshal tool arguments", "function", name, "error", err)
			return "Error: could not parse arguments for tool " + name
		}
	}

	res, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		logger.L.Warn("MCP CallTool failed", "tool", name, "error", err)
		return "Error: tool " + name + " failed: " + err.Error()
	}
	if res == nil {
		return "Error: tool " + name + " returned no result"
	}

	for _, item := range res.Content {
		if text, ok := item.(mcp.TextContent); ok {
			return text.Text
		}
	}
	if res.IsError {
		return "Tool execution resulted in an error without specific text."
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "Tool executed successfully, but result could not be formatted."
	}
	return string(b)
}
