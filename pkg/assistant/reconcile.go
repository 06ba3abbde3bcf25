package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ilkoid/poncho-assistants/pkg/tools"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// FormatTools переводит локальные инструменты в function tools ассистента:
// {type: "function", function: {name, description, parameters}}.
func FormatTools(local []tools.Tool) []openai.AssistantTool {
	out := make([]openai.AssistantTool, 0, len(local))
	for _, t := range local {
		def := t.Definition()
		var params any = def.Parameters
		// инструмент без аргументов: API требует схему объекта
		if def.Parameters == nil {
			params = tools.JSONSchema{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.AssistantTool{
			Type: openai.AssistantToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// toolKey - идентичность инструмента при слиянии.
//
// Function tools различаются по имени, встроенные (code_interpreter,
// file_search, retrieval) по типу. Пустой ключ = запись без тела функции.
func toolKey(t openai.AssistantTool) string {
	if t.Type == openai.AssistantToolTypeFunction {
		if t.Function == nil {
			return ""
		}
		return "function:" + t.Function.Name
	}
	return string(t.Type)
}

// MergeTools объединяет удалённый список инструментов с локальным.
//
// Порядок: сначала удалённые, затем новые локальные в порядке входа.
// Локальное определение заменяет удалённое с тем же именем на его месте.
// Function записи без тела отбрасываются.
func MergeTools(remote, local []openai.AssistantTool) []openai.AssistantTool {
	merged := make([]openai.AssistantTool, 0, len(remote)+len(local))
	index := make(map[string]int, len(remote)+len(local))

	add := func(t openai.AssistantTool, replace bool) {
		key := toolKey(t)
		if key == "" {
			return
		}
		if i, ok := index[key]; ok {
			if replace {
				merged[i] = t
			}
			return
		}
		index[key] = len(merged)
		merged = append(merged, t)
	}

	for _, t := range remote {
		add(t, false)
	}
	for _, t := range local {
		add(t, true)
	}
	return merged
}

// reconcileTools пушит объединённый список инструментов в удалённого ассистента.
//
// Пустой локальный список или список, совпадающий с удалённым, - ничего не
// делаем, удалённая конфигурация не трогается. AssistantTool несёт только
// type и function, поэтому запись сбрасывает настройки встроенных
// инструментов (file_search.max_num_results и т.п.).
// Запись не транзакционна: параллельные вызовы перетирают друг друга.
func reconcileTools(ctx context.Context, api API, remoteID string, local []tools.Tool) (openai.Assistant, error) {
	remote, err := api.RetrieveAssistant(ctx, remoteID)
	if err != nil {
		return openai.Assistant{}, err
	}
	if len(local) == 0 {
		return remote, nil
	}

	merged := MergeTools(remote.Tools, FormatTools(local))
	utils.Debug("Reconciling assistant tools",
		"assistant_id", remoteID,
		"remote", len(remote.Tools),
		"local", len(local),
		"merged", len(merged))

	if sameTools(remote.Tools, merged) {
		utils.Debug("Assistant tools up to date", "assistant_id", remoteID)
		return remote, nil
	}

	updated, err := api.ModifyAssistant(ctx, remoteID, openai.AssistantRequest{
		Model: remote.Model,
		Tools: merged,
	})
	if err != nil {
		return openai.Assistant{}, fmt.Errorf("failed to update assistant tools: %w", err)
	}
	return updated, nil
}

// sameTools сравнивает списки инструментов по их JSON представлению:
// параметры удалённых приходят как map[string]any, локальных как JSONSchema.
func sameTools(a, b []openai.AssistantTool) bool {
	if len(a) != len(b) {
		return false
	}
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
