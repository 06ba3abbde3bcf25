// Интерфейс Tool и структуры определений.

package tools

import "context"

// JSONSchema представляет JSON Schema для параметров инструмента.
//
// Формат соответствует JSON Schema для Function Calling API:
// именно этот объект уходит в function.parameters ассистента.
type JSONSchema map[string]any

// ToolDefinition описывает инструмент для ассистента (function tool).
type ToolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  JSONSchema `json:"parameters"` // JSON Schema объекта аргументов
}

// Tool - контракт, который должен реализовать любой локальный инструмент.
type Tool interface {
	// Definition возвращает описание инструмента для ассистента.
	Definition() ToolDefinition

	// Execute выполняет логику инструмента.
	// argsJSON - сырой JSON с аргументами, который прислал run.
	// Возвращает результат (обычно JSON или текст) или ошибку.
	Execute(ctx context.Context, argsJSON string) (string, error)
}
