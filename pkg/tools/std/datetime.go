// Package std содержит встроенные инструменты, которые хост отдаёт ассистенту.
package std

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ilkoid/poncho-assistants/pkg/tools"
)

// DateTimeArgs - аргументы current_datetime.
type DateTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name like Europe/Moscow. Empty means UTC"`
}

// NewDateTimeTool возвращает инструмент current_datetime.
//
// now подменяется в тестах; nil = time.Now.
func NewDateTimeTool(now func() time.Time) (tools.Tool, error) {
	if now == nil {
		now = time.Now
	}
	return tools.NewFuncTool("current_datetime",
		"Returns the current date and time in RFC3339 for the requested timezone.",
		func(ctx context.Context, args DateTimeArgs) (string, error) {
			loc := time.UTC
			if args.Timezone != "" {
				l, err := time.LoadLocation(args.Timezone)
				if err != nil {
					return "", fmt.Errorf("unknown timezone '%s': %w", args.Timezone, err)
				}
				loc = l
			}
			t := now().In(loc)
			out, err := json.Marshal(map[string]string{
				"datetime": t.Format(time.RFC3339),
				"weekday":  t.Weekday().String(),
				"timezone": loc.String(),
			})
			if err != nil {
				return "", err
			}
			return string(out), nil
		})
}
