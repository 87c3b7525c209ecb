package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/quickrewind/agentcore/core"
	"github.com/stretchr/testify/assert"
)

func sumDefinition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        "sum",
		Description: "Add numbers",
		Parameters: []core.ToolParameter{
			{Name: "a", Type: "number", Description: "First addend", Required: true},
			{Name: "b", Type: "number", Description: "Second addend", Required: true},
		},
	}
}

func TestParameterSchema(t *testing.T) {
	schema := ParameterSchema(sumDefinition())
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	req, _ := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"a", "b"}, req)
}

func TestFunctionTool_Success(t *testing.T) {
	sumTool := NewFunctionTool(sumDefinition(), func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	result, err := sumTool.Invoke(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
	assert.True(t, sumTool.Blocking())
}

func TestFunctionTool_ValidationError(t *testing.T) {
	sumTool := NewFunctionTool(sumDefinition(), func(_ context.Context, _ map[string]any) (any, error) {
		return 0, nil
	})

	_, err := sumTool.Invoke(context.Background(), map[string]any{"a": 1.0})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_WrongArgType(t *testing.T) {
	sumTool := NewFunctionTool(sumDefinition(), func(_ context.Context, _ map[string]any) (any, error) {
		return 0, nil
	})

	_, err := sumTool.Invoke(context.Background(), map[string]any{"a": "one", "b": 2.0})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	failing := NewFunctionTool(sumDefinition(), func(_ context.Context, _ map[string]any) (any, error) {
		return nil, errors.New("backend unavailable")
	})

	_, err := failing.Invoke(context.Background(), map[string]any{"a": 1.0, "b": 2.0})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Contains(t, toolErr.Message, "backend unavailable")
}

func TestFunctionTool_ToolErrorPassthrough(t *testing.T) {
	custom := NewToolError("sum", "quota exceeded", "QUOTA")
	failing := NewFunctionTool(sumDefinition(), func(_ context.Context, _ map[string]any) (any, error) {
		return nil, custom
	})

	_, err := failing.Invoke(context.Background(), map[string]any{"a": 1.0, "b": 2.0})
	assert.Same(t, custom, err.(*ToolError))
}

func TestFunctionTool_NonBlockingOption(t *testing.T) {
	fast := NewFunctionTool(sumDefinition(), func(_ context.Context, _ map[string]any) (any, error) {
		return 0.0, nil
	}, func(o *Options) { o.NonBlocking = true })

	assert.False(t, fast.Blocking())
}
