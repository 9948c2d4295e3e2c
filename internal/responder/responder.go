// Package responder produces agent replies with an OpenAI-compatible chat model,
// letting the model call tools served by MCP servers between turns.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/mentorchat/internal/config"
	"github.com/comigor/mentorchat/internal/llm"
	"github.com/comigor/mentorchat/internal/logger"
	"github.com/comigor/mentorchat/internal/transcript"
	"github.com/comigor/mentorchat/internal/mentor"
)

// FSM States
type FSMState string

const (
	StateReadyToCallLLM FSMState = "ReadyToCallLLM"
	StateExecutingTools FSMState = "ExecutingTools"
	StateDone           FSMState = "Done"  // Terminal: reply produced
	StateError          FSMState = "Error" // Terminal: generation failed
)

// FSM Triggers
type FSMTrigger string

const (
	TriggerLLMRespondedWithContent FSMTrigger = "LLMRespondedWithContent"
	TriggerLLMRequestedTools       FSMTrigger = "LLMRequestedTools"
	TriggerToolsExecutionCompleted FSMTrigger = "ToolsExecutionCompleted"
	TriggerErrorOccurred           FSMTrigger = "ErrorOccurred"
)

// ErrMaxTurns is returned when the model keeps requesting tools.
var ErrMaxTurns = errors.New("exceeded maximum interaction turns")

const defaultSystemPrompt = "You are %s, a mentor who helps people think through their design projects. " +
	"Reply in a warm, concise way and keep the conversation moving with a question."

// Request is the input of one agent turn.
type Request struct {
	History []transcript.Entry // entries before Latest, oldest first
	Latest  transcript.Entry
	Route   mentor.Route
	Label   string
}

// Responder turns a transcript slice into an agent reply.
type Responder struct {
	llmClient    llm.Client
	model        string
	maxTurns     int
	systemPrompt string
	tools        *toolset
}

// New creates a responder and connects the configured MCP servers.
func New(ctx context.Context, llmClient llm.Client, appCfg config.Config) *Responder {
	r := &Responder{
		llmClient:    llmClient,
		model:        appCfg.LLM.Model,
		maxTurns:     appCfg.LLM.MaxTurns,
		systemPrompt: appCfg.Mentor.SystemPrompt,
		tools:        connectMCP(ctx, appCfg.MCPServers),
	}
	if r.maxTurns < 1 {
		r.maxTurns = 1
	}
	return r
}

// Close shuts down MCP clients.
func (r *Responder) Close() error {
	r.tools.close()
	return nil
}

func (r *Responder) buildMessages(req Request) []openai.ChatCompletionMessage {
	label := req.Label
	if label == "" {
		label = "a mentor"
	}

	var sys strings.Builder
	if r.systemPrompt != "" {
		sys.WriteString(r.systemPrompt)
	} else {
		fmt.Fprintf(&sys, defaultSystemPrompt, label)
	}
	for _, prompt := range r.tools.prompts {
		sys.WriteString("\n\n")
		sys.WriteString(prompt)
	}
	if hint := req.Route.Hint(); hint != "" {
		sys.WriteString("\n\nStrategy for this reply: ")
		sys.WriteString(hint)
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sys.String()})
	for _, e := range req.History {
		role := openai.ChatMessageRoleUser
		if e.Sender == transcript.SenderAgent {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: e.Text})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Latest.Text})
	return msgs
}

func newTurnFSM() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateReadyToCallLLM)

	fsm.Configure(StateReadyToCallLLM).
		Permit(TriggerLLMRequestedTools, StateExecutingTools).
		Permit(TriggerLLMRespondedWithContent, StateDone).
		Permit(TriggerErrorOccurred, StateError)

	fsm.Configure(StateExecutingTools).
		Permit(TriggerToolsExecutionCompleted, StateReadyToCallLLM).
		Permit(TriggerErrorOccurred, StateError)

	return fsm
}

// Generate runs model and tool turns until the model answers with content.
// It honors ctx cancellation between and during model calls.
func (r *Responder) Generate(ctx context.Context, req Request) (string, error) {
	var (
		messages = r.buildMessages(req)
		reply    openai.ChatCompletionMessage
		final    string
		lastErr  error
		turn     int
	)
	fsm := newTurnFSM()

	fire := func(trigger FSMTrigger) error {
		if err := fsm.FireCtx(ctx, trigger); err != nil {
			return fmt.Errorf("FSM internal error: %w", err)
		}
		return nil
	}

	for {
		var err error
		switch fsm.MustState() {
		case StateReadyToCallLLM:
			if turn >= r.maxTurns {
				logger.L.Warn("Max interaction turns reached.", "maxTurns", r.maxTurns)
				lastErr = ErrMaxTurns
				err = fire(TriggerErrorOccurred)
				break
			}
			turn++
			logger.L.Debug("FSM: calling LLM", "turn", turn, "messages", len(messages))

			resp, callErr := r.llmClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:    r.model,
				Messages: messages,
				Tools:    r.tools.tools,
			})
			switch {
			case callErr != nil:
				logger.L.Error("LLM call failed", "error", callErr)
				lastErr = callErr
				err = fire(TriggerErrorOccurred)
			case len(resp.Choices) == 0:
				lastErr = errors.New("llm returned no choices")
				err = fire(TriggerErrorOccurred)
			case len(resp.Choices[0].Message.ToolCalls) > 0:
				reply = resp.Choices[0].Message
				err = fire(TriggerLLMRequestedTools)
			default:
				final = resp.Choices[0].Message.Content
				err = fire(TriggerLLMRespondedWithContent)
			}

		case StateExecutingTools:
			logger.L.Debug("FSM: executing tools", "calls", len(reply.ToolCalls))
			messages = append(messages, reply)
			for _, call := range reply.ToolCalls {
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    r.tools.execute(ctx, call),
					ToolCallID: call.ID,
					Name:       call.Function.Name,
				})
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				lastErr = ctxErr
				err = fire(TriggerErrorOccurred)
				break
			}
			err = fire(TriggerToolsExecutionCompleted)

		case StateDone:
			if strings.TrimSpace(final) == "" {
				return "", errors.New("llm returned an empty reply")
			}
			return final, nil

		case StateError:
			if lastErr == nil {
				lastErr = errors.New("FSM ended in StateError without a specific error")
			}
			return "", lastErr
		}
		if err != nil {
			return "", err
		}
	}
}
