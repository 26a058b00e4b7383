package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateChat(t *testing.T) {
	assert.Error(t, ValidateChat(nil))
	assert.Error(t, ValidateChat(&Chat{Title: "no id"}))
	assert.Error(t, ValidateChat(&Chat{ID: "abc"}))
	assert.NoError(t, ValidateChat(&Chat{ID: "abc", SourceFile: "export.json"}))
}

func TestValidateMessage(t *testing.T) {
	valid := &Message{ID: "m", ChatID: "c", Role: RoleUser, Content: "hi"}
	assert.NoError(t, ValidateMessage(valid))

	assert.Error(t, ValidateMessage(nil))
	assert.Error(t, ValidateMessage(&Message{ChatID: "c", Role: RoleUser, Content: "hi"}))
	assert.Error(t, ValidateMessage(&Message{ID: "m", ChatID: "c", Role: RoleUser}))
	assert.Error(t, ValidateMessage(&Message{ID: "m", ChatID: "c", Role: Role("robot"), Content: "hi"}))
}

func TestValidateChunk(t *testing.T) {
	valid := &Chunk{ID: "c_msg_0_chunk_0", Hash: "h", ChatID: "c", MessageID: "m", Content: "x"}
	assert.NoError(t, ValidateChunk(valid))

	assert.Error(t, ValidateChunk(nil))
	assert.Error(t, ValidateChunk(&Chunk{ID: "c_msg_0_chunk_0", ChatID: "c", MessageID: "m", Content: "x"}))
	assert.Error(t, ValidateChunk(&Chunk{ID: "c_msg_0_chunk_0", Hash: "h", ChatID: "c", MessageID: "m"}))
}
