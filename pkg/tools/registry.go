// Реестр для хранения и поиска инструментов.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Registry - потокобезопасное хранилище инструментов.
//
// Помнит порядок регистрации: List() отдаёт инструменты в том же порядке,
// в каком они уйдут в tool list ассистента.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry создает новый пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// validateToolDefinition проверяет что ToolDefinition годится для function tool.
//
// Валидирует:
//   - Name не пустой
//   - Parameters nil (инструмент без аргументов) или JSON объект с type == "object"
//   - Parameters.required (если есть) является массивом строк
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	if def.Parameters == nil {
		return nil
	}

	// Гоняем через JSON: так []string и []any выглядят одинаково
	paramsJSON, err := json.Marshal(def.Parameters)
	if err != nil {
		return fmt.Errorf("tool '%s': failed to marshal parameters: %w", def.Name, err)
	}

	var params map[string]any
	if err := json.Unmarshal(paramsJSON, &params); err != nil {
		return fmt.Errorf("tool '%s': parameters must be a JSON object, got: %s", def.Name, string(paramsJSON))
	}

	typeVal, ok := params["type"]
	if !ok {
		return fmt.Errorf("tool '%s': parameters must have 'type' field", def.Name)
	}

	typeStr, ok := typeVal.(string)
	if !ok {
		return fmt.Errorf("tool '%s': parameters.type must be a string, got: %T", def.Name, typeVal)
	}

	if typeStr != "object" {
		return fmt.Errorf("tool '%s': parameters.type must be 'object', got: '%s'", def.Name, typeStr)
	}

	if requiredVal, exists := params["required"]; exists {
		required, ok := requiredVal.([]any)
		if !ok {
			return fmt.Errorf("tool '%s': parameters.required must be an array", def.Name)
		}

		for i, item := range required {
			if _, ok := item.(string); !ok {
				return fmt.Errorf("tool '%s': parameters.required[%d] must be a string, got: %T", def.Name, i, item)
			}
		}
	}

	return nil
}

// Register добавляет инструмент в реестр с валидацией схемы.
//
// Повторная регистрация с тем же именем заменяет инструмент, позиция сохраняется.
func (r *Registry) Register(tool Tool) error {
	def := tool.Definition()

	if err := validateToolDefinition(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = tool
	return nil
}

// Get ищет инструмент по имени.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool '%s' not found", name)
	}
	return tool, nil
}

// List возвращает инструменты в порядке регистрации.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Select возвращает подмножество инструментов по именам (в порядке names).
// Неизвестные имена - ошибка: пользователь явно попросил такой инструмент.
func (r *Registry) Select(names []string) ([]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(names))
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("tool '%s' not found", name)
		}
		out = append(out, tool)
	}
	return out, nil
}

// GetDefinitions возвращает список всех определений в порядке регистрации.
func (r *Registry) GetDefinitions() []ToolDefinition {
	list := r.List()
	defs := make([]ToolDefinition, 0, len(list))
	for _, t := range list {
		defs = append(defs, t.Definition())
	}
	return defs
}
