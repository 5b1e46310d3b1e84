package bridge

import (
	"github.com/codelamp/codelamp/internal/llm"
	"github.com/codelamp/codelamp/internal/session"
)

// command is the inbound envelope. Every UI command carries a "command"
// discriminator plus whichever fields that command uses; unused fields
// decode to their zero values.
type command struct {
	Command           string `json:"command"`
	APIKey            string `json:"apiKey"`
	Provider          string `json:"provider"`
	Message           string `json:"message"`
	ConversationIndex int    `json:"conversationIndex"`
}

// Outbound events. Each carries the same "command" discriminator the UI
// switches on.

type apiKeyResponseEvent struct {
	Command   string `json:"command"`
	GeminiKey string `json:"geminiKey"`
	OpenAIKey string `json:"openaiKey"`
}

type apiKeySavedEvent struct {
	Command   string `json:"command"`
	Success   bool   `json:"success"`
	IsDeleted bool   `json:"isDeleted"`
	Provider  string `json:"provider"`
}

type apiKeyDeletedEvent struct {
	Command  string `json:"command"`
	Success  bool   `json:"success"`
	Provider string `json:"provider"`
}

type streamEvent struct {
	Command string `json:"command"`
	Chunk   string `json:"chunk,omitempty"`
}

type messageReceivedEvent struct {
	Command string `json:"command"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

type historyResponseEvent struct {
	Command       string                        `json:"command"`
	Conversations []session.DisplayConversation `json:"conversations"`
	Provider      string                        `json:"provider"`
}

type conversationLoadedEvent struct {
	Command  string        `json:"command"`
	Messages []llm.Content `json:"messages"`
}

type clearChatEvent struct {
	Command string `json:"command"`
}
