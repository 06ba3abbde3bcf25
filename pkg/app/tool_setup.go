package app

import (
	"fmt"

	"github.com/ilkoid/poncho-assistants/pkg/tools"
	"github.com/ilkoid/poncho-assistants/pkg/tools/std"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// SetupTools регистрирует встроенные инструменты в реестре.
func SetupTools(registry *tools.Registry) error {
	builtin, err := std.Builtin()
	if err != nil {
		return fmt.Errorf("failed to build builtin tools: %w", err)
	}

	for _, t := range builtin {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("failed to register tool '%s': %w", t.Definition().Name, err)
		}
	}

	var registered []string
	for _, def := range registry.GetDefinitions() {
		registered = append(registered, def.Name)
	}
	utils.Info("Tools registered", "count", len(registered), "tools", registered)
	return nil
}

// SelectTools возвращает инструменты по именам.
//
// Неизвестные имена пропускаются с предупреждением: в details ассистента
// может быть записан инструмент, которого в этой сборке нет.
func SelectTools(registry *tools.Registry, names []string) []tools.Tool {
	known := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := registry.Get(name); err != nil {
			utils.Warn("Unknown tool skipped", "tool", name)
			continue
		}
		known = append(known, name)
	}

	out, err := registry.Select(known)
	if err != nil {
		// реестр не меняется после SetupTools, сюда не попадаем
		utils.Warn("Tool selection failed", "tools", known, "error", err)
		return []tools.Tool{}
	}
	return out
}
