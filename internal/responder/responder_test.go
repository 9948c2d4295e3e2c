package responder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/mentorchat/internal/config"
	"github.com/comigor/mentorchat/internal/transcript"
	"github.com/comigor/mentorchat/internal/mentor"
)

type mockMCPClient struct {
	CallToolFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	closed       bool
}

func (m *mockMCPClient) CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if m.CallToolFunc != nil {
		return m.CallToolFunc(ctx, request)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "mock default success for " + request.Params.Name}},
	}, nil
}

func (m *mockMCPClient) Close() error {
	m.closed = true
	return nil
}

type mockLLM struct {
	calls    []openai.ChatCompletionResponse
	err      error
	requests []openai.ChatCompletionRequest
}

func (m *mockLLM) CreateChatCompletion(ctx context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if len(m.calls) == 0 {
		panic("mockLLM: no more responses configured")
	}
	resp := m.calls[0]
	m.calls = m.calls[1:]
	return resp, nil
}

func contentResponse(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: text}}}}
}

func toolCallResponse(id, name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{ToolCalls: []openai.ToolCall{{
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: name, Arguments: args},
		}}},
	}}}
}

func testConfig() config.Config {
	return config.Config{LLM: config.LLMConfig{Model: "gpt", MaxTurns: 3}}
}

func userEntry(text string) transcript.Entry {
	return transcript.Entry{Sender: transcript.SenderUser, Text: text}
}

func TestGenerate_DirectReply(t *testing.T) {
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{contentResponse("What is the program of the building?")}}
	r := New(context.Background(), llmClient, testConfig())
	require.Empty(t, r.tools.tools)

	out, err := r.Generate(context.Background(), Request{
		History: []transcript.Entry{
			userEntry("hello"),
			{Sender: transcript.SenderAgent, Text: "hi there", AgentLabel: "Design Mentor"},
		},
		Latest: userEntry("I'm designing a community center"),
		Route:  mentor.RouteSocraticExploration,
		Label:  "Design Mentor",
	})
	require.NoError(t, err)
	require.Equal(t, "What is the program of the building?", out)

	require.Len(t, llmClient.requests, 1)
	msgs := llmClient.requests[0].Messages
	require.Len(t, msgs, 4)
	require.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	require.Contains(t, msgs[0].Content, "Design Mentor")
	require.Contains(t, msgs[0].Content, mentor.RouteSocraticExploration.Hint())
	require.Equal(t, openai.ChatMessageRoleUser, msgs[1].Role)
	require.Equal(t, openai.ChatMessageRoleAssistant, msgs[2].Role)
	require.Equal(t, "I'm designing a community center", msgs[3].Content)
	require.Equal(t, "gpt", llmClient.requests[0].Model)
}

func TestGenerate_ConfiguredSystemPrompt(t *testing.T) {
	cfg := testConfig()
	cfg.Mentor.SystemPrompt = "Custom prompt."
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{contentResponse("ok")}}
	r := New(context.Background(), llmClient, cfg)

	_, err := r.Generate(context.Background(), Request{Latest: userEntry("hi")})
	require.NoError(t, err)
	require.Equal(t, "Custom prompt.", llmClient.requests[0].Messages[0].Content)
}

func TestGenerate_ToolCallRoundTrip(t *testing.T) {
	toolName := "site_lookup"
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse("call_1", toolName, `{"town": "Springfield"}`),
		contentResponse("The site is next to the park."),
	}}

	mockClient := &mockMCPClient{
		CallToolFunc: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			require.Equal(t, toolName, request.Params.Name)
			require.Equal(t, map[string]any{"town": "Springfield"}, request.Params.Arguments)
			return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "parcel 12, by the park"}}}, nil
		},
	}

	r := New(context.Background(), llmClient, testConfig())
	r.tools.clients = []MCPClient{mockClient}
	require.True(t, r.tools.register(toolName, "Looks up sites", json.RawMessage(`{"type":"object"}`), mockClient))
	require.False(t, r.tools.register(toolName, "duplicate", nil, mockClient))

	out, err := r.Generate(context.Background(), Request{Latest: userEntry("where should it go?")})
	require.NoError(t, err)
	require.Equal(t, "The site is next to the park.", out)

	second := llmClient.requests[1].Messages
	last := second[len(second)-1]
	require.Equal(t, openai.ChatMessageRoleTool, last.Role)
	require.Equal(t, "parcel 12, by the park", last.Content)
	require.Equal(t, "call_1", last.ToolCallID)
	require.Len(t, llmClient.requests[0].Tools, 1)

	require.NoError(t, r.Close())
	require.True(t, mockClient.closed)
}

func TestGenerate_ToolFailureIsReportedToModel(t *testing.T) {
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse("call_2", "broken", `{}`),
		contentResponse("I could not reach the tool."),
	}}
	mockClient := &mockMCPClient{
		CallToolFunc: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("boom")
		},
	}
	r := New(context.Background(), llmClient, testConfig())
	r.tools.register("broken", "", nil, mockClient)

	out, err := r.Generate(context.Background(), Request{Latest: userEntry("try it")})
	require.NoError(t, err)
	require.Equal(t, "I could not reach the tool.", out)

	msgs := llmClient.requests[1].Messages
	require.Contains(t, msgs[len(msgs)-1].Content, "boom")
}

func TestGenerate_UnknownToolAndBadArgs(t *testing.T) {
	ts := newToolset()
	out := ts.execute(context.Background(), openai.ToolCall{Function: openai.FunctionCall{Name: "missing"}})
	require.Contains(t, out, "not available")

	ts.register("t", "", nil, &mockMCPClient{})
	out = ts.execute(context.Background(), openai.ToolCall{Function: openai.FunctionCall{Name: "t", Arguments: "{not json"}})
	require.Contains(t, out, "could not parse")
}

func TestGenerate_LLMError(t *testing.T) {
	r := New(context.Background(), &mockLLM{err: context.DeadlineExceeded}, testConfig())
	_, err := r.Generate(context.Background(), Request{Latest: userEntry("hi")})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_NoChoices(t *testing.T) {
	r := New(context.Background(), &mockLLM{calls: []openai.ChatCompletionResponse{{}}}, testConfig())
	_, err := r.Generate(context.Background(), Request{Latest: userEntry("hi")})
	require.Error(t, err)
}

func TestGenerate_MaxTurns(t *testing.T) {
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse("a", "loop", `{}`),
		toolCallResponse("b", "loop", `{}`),
		toolCallResponse("c", "loop", `{}`),
	}}
	r := New(context.Background(), llmClient, testConfig())
	r.tools.register("loop", "", nil, &mockMCPClient{})

	_, err := r.Generate(context.Background(), Request{Latest: userEntry("hi")})
	require.ErrorIs(t, err, ErrMaxTurns)
	require.Len(t, llmClient.requests, 3)
}

func TestToolSchema(t *testing.T) {
	raw := json.RawMessage(`{"type":"object","properties":{"a":{"type":"string"}}}`)
	require.Equal(t, raw, toolSchema(mcp.Tool{Name: "x", RawInputSchema: raw}))

	schema := toolSchema(mcp.Tool{Name: "y", InputSchema: mcp.ToolInputSchema{Type: "object"}})
	require.Contains(t, string(schema), `"type":"object"`)
}

type mockPromptSource struct {
	list    *mcp.ListPromptsResult
	listErr error
	prompts map[string]*mcp.GetPromptResult
	fetched []string
}

func (m *mockPromptSource) ListPrompts(context.Context, mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	return m.list, m.listErr
}

func (m *mockPromptSource) GetPrompt(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	m.fetched = append(m.fetched, req.Params.Name)
	p, ok := m.prompts[req.Params.Name]
	if !ok {
		return nil, errors.New("no such prompt")
	}
	return p, nil
}

func TestDiscoverPrompt(t *testing.T) {
	src := &mockPromptSource{
		list: &mcp.ListPromptsResult{Prompts: []mcp.Prompt{
			{Name: "templated", Arguments: []mcp.PromptArgument{{Name: "topic"}}},
			{Name: "studio"},
		}},
		prompts: map[string]*mcp.GetPromptResult{
			"studio": {Messages: []mcp.PromptMessage{
				{Role: mcp.RoleUser, Content: mcp.TextContent{Type: "text", Text: "ignored"}},
				{Role: mcp.RoleAssistant, Content: mcp.TextContent{Type: "text", Text: "Cite precedent projects when useful."}},
			}},
		},
	}

	require.Equal(t, "Cite precedent projects when useful.", discoverPrompt(context.Background(), src))
	require.Equal(t, []string{"studio"}, src.fetched)
}

func TestDiscoverPrompt_NothingUsable(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, discoverPrompt(ctx, &mockPromptSource{listErr: errors.New("down")}))
	require.Empty(t, discoverPrompt(ctx, &mockPromptSource{list: &mcp.ListPromptsResult{Prompts: []mcp.Prompt{
		{Name: "templated", Arguments: []mcp.PromptArgument{{Name: "topic"}}},
	}}}))
	require.Empty(t, discoverPrompt(ctx, &mockPromptSource{list: &mcp.ListPromptsResult{Prompts: []mcp.Prompt{{Name: "gone"}}}}))
}

func TestGenerate_AppendsDiscoveredPrompts(t *testing.T) {
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{contentResponse("ok")}}
	r := New(context.Background(), llmClient, testConfig())
	r.tools.prompts = []string{"Cite precedent projects when useful."}

	_, err := r.Generate(context.Background(), Request{
		Latest: userEntry("hi"),
		Route:  mentor.RouteProgressiveOpening,
		Label:  "Design Mentor",
	})
	require.NoError(t, err)

	sys := llmClient.requests[0].Messages[0].Content
	require.Contains(t, sys, "Design Mentor")
	require.Contains(t, sys, "\n\nCite precedent projects when useful.")
	require.Contains(t, sys, mentor.RouteProgressiveOpening.Hint())
}
