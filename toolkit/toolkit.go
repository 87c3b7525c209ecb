// Package toolkit ships the built-in tools: model-backed content helpers
// plus a registry introspection tool. Construct them with a Completion and
// register them like any user-supplied tool.
package toolkit

import (
	"context"
	"fmt"
	"strings"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/model"
	"github.com/quickrewind/agentcore/registry"
	"github.com/quickrewind/agentcore/tool"
)

// DefaultSummaryLength is the word budget used when the caller does not
// pass max_length.
const DefaultSummaryLength = 150

// NewGenerateSummary builds the generate_summary tool. It condenses content
// to at most max_length words with one model call.
func NewGenerateSummary(completion model.Completion) tool.Tool {
	return tool.NewFunctionTool(core.ToolDefinition{
		Name:        "generate_summary",
		Description: "Generates a concise summary of the given content",
		Parameters: []core.ToolParameter{
			{Name: "content", Type: "string", Description: "Content to summarize", Required: true},
			{Name: "max_length", Type: "integer", Description: "Maximum summary length in words", Required: false},
		},
		Returns: "A plain-text summary",
		Tags:    []string{"content"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		content, _ := args["content"].(string)
		maxLength := intArg(args, "max_length", DefaultSummaryLength)

		prompt := fmt.Sprintf(
			"Summarize the following content in at most %d words. Respond with the summary only.\n\n%s",
			maxLength, content)
		return complete(ctx, completion, prompt)
	})
}

// NewAnswerQuestion builds the answer_question tool. It answers a question
// using only the supplied content as context.
func NewAnswerQuestion(completion model.Completion) tool.Tool {
	return tool.NewFunctionTool(core.ToolDefinition{
		Name:        "answer_question",
		Description: "Answers a question using only the given content as context",
		Parameters: []core.ToolParameter{
			{Name: "content", Type: "string", Description: "Context to answer from", Required: true},
			{Name: "question", Type: "string", Description: "The question to answer", Required: true},
		},
		Returns: "A plain-text answer grounded in the content",
		Tags:    []string{"content"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		content, _ := args["content"].(string)
		question, _ := args["question"].(string)

		prompt := fmt.Sprintf(
			"Answer the question using only the context below. If the context does not contain the answer, say so.\n\nContext:\n%s\n\nQuestion: %s",
			content, question)
		return complete(ctx, completion, prompt)
	})
}

// NewAnalyzeContent builds the analyze_content tool. It extracts topics, key
// points and notable segments from a transcript.
func NewAnalyzeContent(completion model.Completion) tool.Tool {
	return tool.NewFunctionTool(core.ToolDefinition{
		Name:        "analyze_content",
		Description: "Analyzes a transcript and extracts topics, key points and notable segments",
		Parameters: []core.ToolParameter{
			{Name: "transcript", Type: "string", Description: "Transcript text to analyze", Required: true},
		},
		Returns: "A structured analysis of the transcript",
		Tags:    []string{"content"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		transcript, _ := args["transcript"].(string)

		prompt := fmt.Sprintf(
			"Analyze the following transcript. List the main topics, the key points per topic, and any notable segments worth revisiting.\n\n%s",
			transcript)
		return complete(ctx, completion, prompt)
	})
}

// NewListTools builds the list_tools tool, which reports the registry's
// current catalog. It never blocks and runs inline.
func NewListTools(reg *registry.Registry) tool.Tool {
	return tool.NewFunctionTool(core.ToolDefinition{
		Name:        "list_tools",
		Description: "Lists the names and descriptions of every registered tool",
		Returns:     "One line per tool",
		Tags:        []string{"introspection"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		defs := reg.List()
		lines := make([]string, 0, len(defs))
		for _, def := range defs {
			lines = append(lines, fmt.Sprintf("%s: %s", def.Name, def.Description))
		}
		return strings.Join(lines, "\n"), nil
	}, func(o *tool.Options) { o.NonBlocking = true })
}

// RegisterDefaults registers the full built-in toolkit on the registry.
func RegisterDefaults(reg *registry.Registry, completion model.Completion) error {
	tools := []tool.Tool{
		NewGenerateSummary(completion),
		NewAnswerQuestion(completion),
		NewAnalyzeContent(completion),
		NewListTools(reg),
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func complete(ctx context.Context, completion model.Completion, prompt string) (any, error) {
	resp, err := completion.Complete(ctx, model.Request{
		Messages: []model.Message{model.UserMessage(prompt)},
	})
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(resp.Text), nil
}

// intArg reads an integer argument that may arrive as float64 from JSON.
func intArg(args map[string]any, name string, fallback int) int {
	switch v := args[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
