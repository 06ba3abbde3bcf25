package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor строит JSON Schema параметров из Go структуры аргументов.
//
// Теги: `json:"city"` - имя поля, `jsonschema:"required,description=..."` -
// обязательность и описание (см. github.com/invopop/jsonschema).
func SchemaFor(v any) (JSONSchema, error) {
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := r.Reflect(v)

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	var out JSONSchema
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Ассистенту не нужны служебные поля draft-а
	delete(out, "$schema")
	delete(out, "$id")

	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}

	return out, nil
}

// FuncTool - инструмент из обычной функции с типизированными аргументами.
//
// Схема параметров выводится из A через SchemaFor, аргументы от run
// разбираются json.Unmarshal в A перед вызовом fn.
type FuncTool[A any] struct {
	def ToolDefinition
	fn  func(ctx context.Context, args A) (string, error)
}

// NewFuncTool создаёт FuncTool. Ошибка - если не удалось построить схему.
func NewFuncTool[A any](name, description string, fn func(ctx context.Context, args A) (string, error)) (*FuncTool[A], error) {
	var zero A
	params, err := SchemaFor(&zero)
	if err != nil {
		return nil, fmt.Errorf("tool '%s': %w", name, err)
	}

	return &FuncTool[A]{
		def: ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
		fn: fn,
	}, nil
}

// Definition реализует Tool.
func (t *FuncTool[A]) Definition() ToolDefinition {
	return t.def
}

// Execute реализует Tool.
func (t *FuncTool[A]) Execute(ctx context.Context, argsJSON string) (string, error) {
	var args A
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("tool '%s': invalid arguments: %w", t.def.Name, err)
		}
	}
	return t.fn(ctx, args)
}
