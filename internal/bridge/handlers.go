package bridge

import (
	"context"
	"log/slog"
	"strings"
)

const (
	senderSystem = "system"
	senderModel  = "model"
)

const missingKeyMessage = "Please set your API Key in settings first."

// dispatch routes one UI command. Handlers report failures to the UI as
// system messages or empty result sets; nothing here takes the process down.
func (s *Server) dispatch(ctx context.Context, logger *slog.Logger, cmd command, send func(any) error) {
	logger.Debug("command received", "command", cmd.Command, "provider", cmd.Provider)

	switch cmd.Command {
	case "saveApiKey":
		s.handleSaveAPIKey(logger, cmd, send)
	case "getApiKey":
		s.handleGetAPIKey(send)
	case "deleteApiKey":
		s.handleDeleteAPIKey(logger, cmd, send)
	case "sendMessage":
		s.handleSendMessage(ctx, logger, cmd, send)
	case "getHistory":
		s.sendHistory(cmd.Provider, send)
	case "loadConversation":
		s.handleLoadConversation(logger, cmd, send)
	case "newChat":
		s.handleNewChat(cmd, send)
	case "deleteConversation":
		s.handleDeleteConversation(logger, cmd, send)
	default:
		logger.Warn("unknown command", "command", cmd.Command)
	}
}

// handleSaveAPIKey stores the key; saving an empty key deletes the entry
// and the UI is told which of the two happened.
func (s *Server) handleSaveAPIKey(logger *slog.Logger, cmd command, send func(any) error) {
	if err := s.secrets.Set(cmd.Provider, cmd.APIKey); err != nil {
		logger.Error("failed to save API key", "provider", cmd.Provider, "error", err)
		send(apiKeySavedEvent{Command: "apiKeySaved", Success: false, Provider: cmd.Provider})
		return
	}
	send(apiKeySavedEvent{
		Command:   "apiKeySaved",
		Success:   true,
		IsDeleted: cmd.APIKey == "",
		Provider:  cmd.Provider,
	})
}

func (s *Server) handleGetAPIKey(send func(any) error) {
	send(apiKeyResponseEvent{
		Command:   "apiKeyResponse",
		GeminiKey: s.secrets.Get("gemini"),
		OpenAIKey: s.secrets.Get("openai"),
	})
}

func (s *Server) handleDeleteAPIKey(logger *slog.Logger, cmd command, send func(any) error) {
	if err := s.secrets.Delete(cmd.Provider); err != nil {
		logger.Error("failed to delete API key", "provider", cmd.Provider, "error", err)
		send(apiKeyDeletedEvent{Command: "apiKeyDeleted", Success: false, Provider: cmd.Provider})
		return
	}
	send(apiKeyDeletedEvent{Command: "apiKeyDeleted", Success: true, Provider: cmd.Provider})
}

// handleSendMessage runs one chat turn. Gemini answers stream to the UI
// with start/chunk/complete framing; other providers answer in a single
// messageReceived event. Successful turns land in the live session first,
// then the archive.
func (s *Server) handleSendMessage(ctx context.Context, logger *slog.Logger, cmd command, send func(any) error) {
	apiKey := s.secrets.Get(cmd.Provider)
	if apiKey == "" {
		send(messageReceivedEvent{
			Command: "messageReceived",
			Message: missingKeyMessage,
			Sender:  senderSystem,
		})
		return
	}

	var response string
	switch cmd.Provider {
	case "gemini":
		history := s.sessions.CurrentSession()
		client := s.newClient(apiKey)

		isFirstChunk := true
		answer, err := s.loop.Run(ctx, client, history, cmd.Message, s.workspace, func(chunk string) {
			if isFirstChunk {
				send(streamEvent{Command: "streamStart"})
				isFirstChunk = false
			}
			send(streamEvent{Command: "streamChunk", Chunk: chunk})
		})
		if err != nil {
			logger.Error("chat turn failed", "provider", cmd.Provider, "error", err)
			send(messageReceivedEvent{
				Command: "messageReceived",
				Message: "Error: " + rewriteError(err),
				Sender:  senderSystem,
			})
			return
		}
		send(streamEvent{Command: "streamComplete"})
		response = answer

	case "openai":
		response = "OpenAI integration coming soon..."
		send(messageReceivedEvent{Command: "messageReceived", Message: response, Sender: senderModel})

	default:
		response = "Unknown provider"
		send(messageReceivedEvent{Command: "messageReceived", Message: response, Sender: senderSystem})
	}

	s.sessions.AppendTurn(cmd.Message, response)
	if err := s.sessions.PersistTurn(cmd.Provider, cmd.Message, response); err != nil {
		logger.Error("failed to persist turn", "provider", cmd.Provider, "error", err)
	}
}

func (s *Server) sendHistory(provider string, send func(any) error) {
	send(historyResponseEvent{
		Command:       "historyResponse",
		Conversations: s.sessions.ListForDisplay(provider),
		Provider:      provider,
	})
}

func (s *Server) handleLoadConversation(logger *slog.Logger, cmd command, send func(any) error) {
	messages, err := s.sessions.Load(cmd.ConversationIndex, cmd.Provider)
	if err != nil {
		logger.Warn("failed to load conversation", "index", cmd.ConversationIndex, "error", err)
		return
	}
	send(conversationLoadedEvent{Command: "conversationLoaded", Messages: messages})
}

func (s *Server) handleNewChat(cmd command, send func(any) error) {
	s.sessions.StartNewBlank()
	send(clearChatEvent{Command: "clearChat"})
	s.sendHistory(cmd.Provider, send)
}

func (s *Server) handleDeleteConversation(logger *slog.Logger, cmd command, send func(any) error) {
	if err := s.sessions.Delete(cmd.ConversationIndex, cmd.Provider); err != nil {
		logger.Warn("failed to delete conversation", "index", cmd.ConversationIndex, "error", err)
		return
	}
	send(clearChatEvent{Command: "clearChat"})
	s.sendHistory(cmd.Provider, send)
}

// rewriteError maps backend failures onto the two messages the UI knows
// how to present, leaving everything else verbatim.
func rewriteError(err error) string {
	msg := err.Error()
	switch {
	case isConnectivityError(msg):
		return "Network error: Failed to connect to Gemini API. Please check your internet connection."
	case strings.Contains(msg, "API key") || strings.Contains(msg, "API_KEY"):
		return "API Key error: Please verify your API key is valid."
	default:
		return msg
	}
}

func isConnectivityError(msg string) bool {
	for _, pattern := range []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"dial tcp",
		"TLS handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
