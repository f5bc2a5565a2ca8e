// Package assistant runs Gemini chat sessions that can control the home
// through the tool façade.
package assistant

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/vegardlu/homelab-core/internal/logging"
	"github.com/vegardlu/homelab-core/internal/tools"
)

// systemPrompt steers the model toward the smart-home tools. Users write
// in Norwegian, entities are named in a mix of Norwegian and English, so
// the model is told to search before acting rather than guess entity ids.
const systemPrompt = `You are a smart home assistant for a Norwegian household.
You control Home Assistant through the provided functions.

Rules:
- Users typically write in Norwegian. Answer in the user's language.
- Never guess entity ids. Use search_entities or list_entities to find the
  right entity before calling a service.
- Room names may be Norwegian (stua, kjøkkenet, soverommet) while entities
  and areas may be named in English. The search handles this.
- When a command is ambiguous, ask a short follow-up question instead of
  acting on the wrong device.
- Keep answers short and conversational.`

// maxToolRounds bounds the function-calling loop so a misbehaving model
// cannot spin forever.
const maxToolRounds = 10

// Assistant manages per-session Gemini chats wired to the tool façade.
// Session history is kept in memory for the lifetime of the process.
type Assistant struct {
	client   *genai.Client
	model    string
	registry *tools.Registry
	logger   *logging.Logger

	mu       sync.Mutex
	sessions map[string]*genai.Chat
}

// New creates an assistant backed by the Gemini API.
func New(ctx context.Context, apiKey, model string, registry *tools.Registry, logger *logging.Logger) (*Assistant, error) {
	if logger == nil {
		logger = logging.New(logging.LevelInfo)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &Assistant{
		client:   client,
		model:    model,
		registry: registry,
		logger:   logger,
		sessions: make(map[string]*genai.Chat),
	}, nil
}

// Chat sends a user message within the given session and returns the final
// model response after any tool calls have been resolved.
func (a *Assistant) Chat(ctx context.Context, sessionID, message string) (string, error) {
	chat, err := a.session(ctx, sessionID)
	if err != nil {
		return "", err
	}

	a.logger.Debug("Chat message", "session", sessionID, "length", len(message))

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			break
		}

		call := calls[0]
		a.logger.Info("Assistant tool call", "session", sessionID, "tool", call.Name)

		// The façade never raises: tool errors come back as text and the
		// model decides how to recover.
		result := a.registry.Execute(ctx, call.Name, call.Args)

		resp, err = chat.SendMessage(ctx, genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				Name:     call.Name,
				Response: map[string]any{"result": result},
			},
		})
		if err != nil {
			return "", fmt.Errorf("sending function response: %w", err)
		}
	}

	return resp.Text(), nil
}

// SessionCount returns the number of active chat sessions.
func (a *Assistant) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// session returns the chat for a session id, creating it on first use.
func (a *Assistant) session(ctx context.Context, sessionID string) (*genai.Chat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if chat, ok := a.sessions[sessionID]; ok {
		return chat, nil
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Tools: []*genai.Tool{
			{FunctionDeclarations: declarations(a.registry)},
		},
	}

	chat, err := a.client.Chats.Create(ctx, a.model, config, nil)
	if err != nil {
		return nil, fmt.Errorf("creating chat session: %w", err)
	}

	a.logger.Info("Chat session created", "session", sessionID)
	a.sessions[sessionID] = chat
	return chat, nil
}
