package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/model"
)

const synthesisPrompt = `You are composing the final answer to a user request after a plan was
executed on their behalf. Use the step results below as your only source of
facts; do not invent information that is not in them.

If any step result contains structured reference data the user should see
(sources, citations, timestamps, links), repeat it verbatim inside a single
<references>...</references> block containing a JSON array of objects, after
your prose answer. Omit the block when there is nothing to reference.

Original request:
%s

Plan reasoning:
%s

Step results:
%s`

// synthesisResult is the parsed output of the synthesis model call.
type synthesisResult struct {
	FinalAnswer string
	References  []map[string]any
}

// synthesize issues the final model call and splits the output into prose
// answer and extracted references.
func synthesize(ctx context.Context, completion model.Completion, sess *core.Session) (*synthesisResult, error) {
	prompt := fmt.Sprintf(synthesisPrompt,
		sess.OriginalRequest,
		planReasoning(sess),
		formatStepResults(sess),
	)

	resp, err := completion.Complete(ctx, model.Request{
		Messages: []model.Message{model.UserMessage(prompt)},
	})
	if err != nil {
		return nil, core.NewSynthesisError(err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, core.NewSynthesisError(fmt.Errorf("model returned an empty answer"))
	}

	answer, refs := extractReferences(resp.Text)
	return &synthesisResult{FinalAnswer: answer, References: refs}, nil
}

func planReasoning(sess *core.Session) string {
	if sess.Plan == nil || sess.Plan.Reasoning == "" {
		return "(none)"
	}
	return sess.Plan.Reasoning
}

// formatStepResults renders each finished step for the synthesis prompt.
// Full results are included here; only the stream excerpt is bounded.
func formatStepResults(sess *core.Session) string {
	var b strings.Builder
	for _, step := range sess.Steps {
		fmt.Fprintf(&b, "Step %d (%s): %s\n", step.Index, step.Status, step.Description)
		if step.Result != nil {
			fmt.Fprintf(&b, "Result: %s\n", stringifyResult(step.Result))
		}
	}
	if b.Len() == 0 {
		return "(no steps were executed)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func stringifyResult(result any) string {
	switch v := result.(type) {
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// extractReferences pulls every <references> block out of the answer text,
// parses the JSON arrays inside and returns the cleaned prose plus the
// combined reference objects. Malformed blocks are dropped silently; a bad
// citation never fails a finished session.
func extractReferences(text string) (string, []map[string]any) {
	const openTag, closeTag = "<references>", "</references>"

	var refs []map[string]any
	cleaned := text
	for {
		start := strings.Index(cleaned, openTag)
		if start < 0 {
			break
		}
		end := strings.Index(cleaned[start:], closeTag)
		if end < 0 {
			// Unterminated block: strip the tag and everything after it.
			cleaned = cleaned[:start]
			break
		}
		end += start

		body := cleaned[start+len(openTag) : end]
		var parsed []map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &parsed); err == nil {
			refs = append(refs, parsed...)
		}
		cleaned = cleaned[:start] + cleaned[end+len(closeTag):]
	}

	return strings.TrimSpace(cleaned), refs
}

// processingTime is the wall-clock duration since session creation.
func processingTime(sess *core.Session) time.Duration {
	return time.Since(sess.Created)
}
