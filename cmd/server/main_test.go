package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv_ReturnsValueWhenSet(t *testing.T) {
	t.Setenv("CORE_TEST_VAR", "configured")
	assert.Equal(t, "configured", getEnv("CORE_TEST_VAR", "fallback"))
}

func TestGetEnv_ReturnsDefaultWhenUnset(t *testing.T) {
	os.Unsetenv("CORE_TEST_VAR_UNSET")
	assert.Equal(t, "fallback", getEnv("CORE_TEST_VAR_UNSET", "fallback"))
}

func TestGetEnv_ReturnsDefaultWhenEmpty(t *testing.T) {
	t.Setenv("CORE_TEST_VAR_EMPTY", "")
	assert.Equal(t, "fallback", getEnv("CORE_TEST_VAR_EMPTY", "fallback"))
}
