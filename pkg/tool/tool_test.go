package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreagent/runtime/pkg/event"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) SchemaJSON() string {
	return `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`
}
func (echoTool) Execute(_ context.Context, args map[string]any) (Result, error) {
	return Result{Payload: map[string]any{"text": args["text"]}}, nil
}
func (echoTool) SecurityRisk(map[string]any) event.Risk { return event.RiskLow }

func TestRegister_And_Get(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(echoTool{}))

	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", got.Name())
}

func TestRegister_InvalidSchema(t *testing.T) {
	r := New()
	err := r.Register(badSchemaTool{})
	assert.Error(t, err)
}

type badSchemaTool struct{ echoTool }

func (badSchemaTool) Name() string       { return "bad" }
func (badSchemaTool) SchemaJSON() string { return `not json` }

func TestUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(echoTool{}))
	r.Unregister("echo")
	_, ok := r.Get("echo")
	assert.False(t, ok)
}

func TestNames(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(echoTool{}))
	assert.Equal(t, []string{"echo"}, r.Names())
}

func TestSchemas(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(echoTool{}))
	schemas := r.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, "echo", schemas[0].Name)
}

func TestValidate_UnknownTool(t *testing.T) {
	r := New()
	_, err := r.Validate("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestValidate_Success(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(echoTool{}))
	out, err := r.Validate("echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["text"])
}

func TestValidate_CoercesBeforeValidating(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(echoTool{}))
	// "text" required field present as a string already, nothing to coerce
	// here; exercise a schema requiring a number instead via a second tool.
	require.NoError(t, r.Register(numberTool{}))
	out, err := r.Validate("number", map[string]any{"n": "42"})
	require.NoError(t, err)
	assert.Equal(t, float64(42), out["n"])
}

type numberTool struct{ echoTool }

func (numberTool) Name() string { return "number" }
func (numberTool) SchemaJSON() string {
	return `{"type":"object","properties":{"n":{"type":"number"}},"required":["n"]}`
}

func TestValidate_Failure(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(echoTool{}))
	_, err := r.Validate("echo", map[string]any{})
	var verr *ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "echo", verr.ToolName)
}

func TestExecute_UnknownTool(t *testing.T) {
	r := New()
	_, err := r.Execute(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestExecute_Success(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(echoTool{}))
	res, err := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Payload["text"])
}
