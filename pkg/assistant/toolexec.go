package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ilkoid/poncho-assistants/pkg/events"
	"github.com/ilkoid/poncho-assistants/pkg/tools"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// UsedTool - запись об одном вызове инструмента за run.
type UsedTool struct {
	Tool       string         `json:"tool"`
	ToolInput  map[string]any `json:"toolInput"`
	ToolOutput string         `json:"toolOutput"`
}

// toolExecutor исполняет tool calls одного requires_action последовательно,
// в порядке, в котором их вернул API.
type toolExecutor struct {
	registry *tools.Registry
	emitter  events.Emitter
	metrics  *Metrics
}

// execute возвращает outputs для SubmitToolOutputs и записи UsedTool.
//
// Вызовы без локального инструмента пропускаются. Битые аргументы и ошибка
// инструмента прерывают run. Если не набралось ни одного output - ErrNoToolOutputs.
func (e *toolExecutor) execute(ctx context.Context, threadID, runID string, calls []openai.ToolCall) ([]openai.ToolOutput, []UsedTool, error) {
	var outputs []openai.ToolOutput
	var used []UsedTool

	for _, call := range calls {
		name := call.Function.Name
		tool, err := e.registry.Get(name)
		if err != nil {
			utils.Debug("Tool call skipped, no local tool",
				"tool", name, "thread_id", threadID, "run_id", runID)
			e.metrics.RecordToolCall(name, "skipped")
			continue
		}

		argsJSON := strings.TrimSpace(call.Function.Arguments)
		if argsJSON == "" {
			argsJSON = "{}"
		}
		var input map[string]any
		if err := json.Unmarshal([]byte(argsJSON), &input); err != nil {
			e.metrics.RecordToolCall(name, "error")
			return nil, nil, fmt.Errorf("invalid arguments for tool '%s' (call %s): %w", name, call.ID, err)
		}

		e.emitter.Emit(ctx, events.New(events.EventToolCall, events.ToolCallData{ToolName: name, Args: argsJSON}))

		start := time.Now()
		output, err := tool.Execute(ctx, argsJSON)
		if err != nil {
			e.metrics.RecordToolCall(name, "error")
			return nil, nil, fmt.Errorf("tool '%s' failed: %w", name, err)
		}
		duration := time.Since(start)

		utils.Info("Tool executed",
			"tool", name,
			"run_id", runID,
			"output_length", len(output),
			"duration_ms", duration.Milliseconds())
		e.metrics.RecordToolCall(name, "ok")
		e.emitter.Emit(ctx, events.New(events.EventToolResult, events.ToolResultData{
			ToolName: name,
			Result:   output,
			Duration: duration,
		}))

		outputs = append(outputs, openai.ToolOutput{ToolCallID: call.ID, Output: output})
		used = append(used, UsedTool{Tool: name, ToolInput: input, ToolOutput: output})
	}

	if len(outputs) == 0 {
		return nil, nil, fmt.Errorf("%w: thread %s, run %s", ErrNoToolOutputs, threadID, runID)
	}
	return outputs, used, nil
}
