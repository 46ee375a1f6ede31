package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/sproutvoice/backend/internal/model/conversation"
	"github.com/sproutvoice/backend/internal/model/profile"
)

// historyLimit bounds how many persisted turns flow into each generation.
const historyLimit = 10

const basePrompt = "You are a warm, practical parenting companion speaking with a caregiver " +
	"over voice. Keep replies short and conversational, as they will be read aloud. " +
	"Offer concrete, age-appropriate suggestions and never give medical diagnoses; " +
	"recommend a pediatrician for anything that sounds clinical."

func buildSystemPrompt(prof *profile.Profile, now time.Time) string {
	if prof == nil {
		return basePrompt
	}

	var builder strings.Builder
	builder.WriteString(basePrompt)
	if prof.ChildName != "" {
		builder.WriteString(fmt.Sprintf("\n\nThe caregiver's child is named %s.", prof.ChildName))
	}
	if months := prof.AgeMonths(now); months >= 0 {
		builder.WriteString(fmt.Sprintf(" The child is %d months old.", months))
	}
	if prof.Notes != "" {
		builder.WriteString("\nCaregiver notes: ")
		builder.WriteString(prof.Notes)
	}
	return builder.String()
}

func historyMessages(turns []conversation.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case conversation.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case conversation.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}

	return history
}
