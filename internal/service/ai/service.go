package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/sproutvoice/backend/internal/config"
	"github.com/sproutvoice/backend/internal/logging"
	"github.com/sproutvoice/backend/internal/model/conversation"
	"github.com/sproutvoice/backend/internal/model/profile"
)

// Service generates assistant replies from a transcript, the recent turn
// history, and the caller's child profile.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the conversation service and compiles its chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile conversation chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// Respond runs the chain and returns the reply text plus the provider's
// token usage for the call (zero when the provider reports none).
func (s *Service) Respond(ctx context.Context, transcript string, history []conversation.Turn, prof *profile.Profile) (string, int, error) {
	input := map[string]any{
		"system":  buildSystemPrompt(prof, time.Now()),
		"history": historyMessages(history),
		"query":   transcript,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", 0, fmt.Errorf("failed to run conversation chain: %w", err)
	}

	tokens := tokensUsed(response)
	logging.Infow("ai: generated reply", "length", len(response.Content), "tokens", tokens)
	return response.Content, tokens, nil
}

func tokensUsed(msg *schema.Message) int {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return 0
	}
	return msg.ResponseMeta.Usage.TotalTokens
}
