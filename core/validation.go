package core

import "fmt"

// ValidateChat validates a Chat according to domain rules.
//
// Validation rules:
//   - ID must be set (the content hash)
//   - Title may be empty (untitled exports are common)
//   - SourceFile must be set
func ValidateChat(chat *Chat) error {
	if chat == nil {
		return fmt.Errorf("%w: chat is nil", ErrInvalidRecord)
	}
	if chat.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyID)
	}
	if chat.SourceFile == "" {
		return fmt.Errorf("%w: chat %s has no source file", ErrInvalidRecord, chat.ID)
	}
	return nil
}

// ValidateMessage validates a Message according to domain rules.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidRecord)
	}
	if msg.ID == "" || msg.ChatID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyID)
	}
	if msg.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyContent)
	}
	if err := ValidateRole(msg.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidRecord)
	}
	if chunk.ID == "" || chunk.Hash == "" || chunk.ChatID == "" || chunk.MessageID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyID)
	}
	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyContent)
	}
	return nil
}

// ValidateRole validates that a Role has a known value.
func ValidateRole(role Role) error {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidRole, role)
}
