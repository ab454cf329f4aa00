package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFull_ContainsAppNameAndCommit(t *testing.T) {
	got := Full()
	assert.True(t, strings.HasPrefix(got, AppName+"/"))
	assert.Equal(t, AppName+"/"+GitCommit, got)
}

func TestGitCommit_NeverEmpty(t *testing.T) {
	assert.NotEmpty(t, GitCommit)
}

func TestAppName(t *testing.T) {
	assert.Equal(t, "coreagent-runtime", AppName)
}
