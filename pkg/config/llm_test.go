package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMProviderRegistry_GetExisting(t *testing.T) {
	reg := NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"claude": {Type: LLMProviderAnthropic, Model: "claude-opus", MaxToolResultTokens: 4000},
	})

	got, err := reg.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, "claude-opus", got.Model)
}

func TestLLMProviderRegistry_GetMissing(t *testing.T) {
	reg := NewLLMProviderRegistry(nil)

	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, ErrLLMProviderNotFound)
}

func TestLLMProviderRegistry_Has(t *testing.T) {
	reg := NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"gpt": {Type: LLMProviderOpenAI, Model: "gpt-4", MaxToolResultTokens: 2000},
	})

	assert.True(t, reg.Has("gpt"))
	assert.False(t, reg.Has("gemini"))
}

func TestLLMProviderRegistry_Len(t *testing.T) {
	reg := NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"gpt":   {Type: LLMProviderOpenAI, Model: "gpt-4", MaxToolResultTokens: 2000},
		"gemini": {Type: LLMProviderGemini, Model: "gemini-pro", MaxToolResultTokens: 2000},
	})

	assert.Equal(t, 2, reg.Len())
}

func TestLLMProviderRegistry_GetAllReturnsCopy(t *testing.T) {
	reg := NewLLMProviderRegistry(map[string]*LLMProviderConfig{
		"gpt": {Type: LLMProviderOpenAI, Model: "gpt-4", MaxToolResultTokens: 2000},
	})

	all := reg.GetAll()
	delete(all, "gpt")

	assert.True(t, reg.Has("gpt"), "mutating the returned map must not affect the registry")
}

func TestNewLLMProviderRegistry_DefensiveCopyOfInput(t *testing.T) {
	src := map[string]*LLMProviderConfig{
		"gpt": {Type: LLMProviderOpenAI, Model: "gpt-4", MaxToolResultTokens: 2000},
	}
	reg := NewLLMProviderRegistry(src)

	delete(src, "gpt")

	assert.True(t, reg.Has("gpt"), "mutating the caller's map after construction must not affect the registry")
}
