package main

import (
	"github.com/spf13/cobra"
)

func buildListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored assistants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print options as JSON")
	return cmd
}

func buildRunCmd() *cobra.Command {
	var (
		chatID string
		tools  []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run <assistant-id> <message>",
		Short: "Send one message to an assistant and print the reply",
		Example: `  poncho-assistant run 6f1c... "What time is it in Tokyo?"
  poncho-assistant run 6f1c... "and in Paris?" --chat-id 2b7e...
  poncho-assistant run 6f1c... "2+2?" --tools calculator`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// nil = инструменты из details ассистента, --tools "" = без инструментов
			var selected []string
			if cmd.Flags().Changed("tools") {
				selected = append([]string{}, tools...)
			}
			return runRun(cmd, args[0], joinArgs(args[1:]), chatID, selected, asJSON)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "", "Continue an existing chat (its thread is reused)")
	cmd.Flags().StringSliceVar(&tools, "tools", nil, "Local tools to offer (default: tools from assistant details)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func buildClearCmd() *cobra.Command {
	var sessionID, chatID string
	cmd := &cobra.Command{
		Use:   "clear <assistant-id>",
		Short: "Delete the remote thread of a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd, args[0], sessionID, chatID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Thread id to delete")
	cmd.Flags().StringVar(&chatID, "chat-id", "", "Chat id whose thread should be deleted")
	return cmd
}

func buildChatCmd() *cobra.Command {
	var (
		chatID      string
		theme       string
		clearOnExit bool
	)
	cmd := &cobra.Command{
		Use:   "chat <assistant-id>",
		Short: "Interactive terminal chat with an assistant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, args[0], chatID, theme, clearOnExit)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "", "Continue an existing chat")
	cmd.Flags().StringVar(&theme, "theme", "default", "Color scheme: default, dark, light, dracula")
	cmd.Flags().BoolVar(&clearOnExit, "clear-on-exit", false, "Delete the remote thread when the chat is closed")
	return cmd
}

func buildServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with prometheus metrics",
		Long: `Start the HTTP API.

Routes:
  GET    /health
  GET    /metrics
  GET    /v1/assistants
  POST   /v1/assistants/:id/runs
  DELETE /v1/sessions/:sessionId?assistantId=...&chatId=...

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd)
		},
	}
}

func buildAssistantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assistant",
		Short: "Manage stored assistants",
	}
	cmd.AddCommand(buildAssistantAddCmd())
	return cmd
}

func buildAssistantAddCmd() *cobra.Command {
	var opts assistantAddOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store an assistant configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssistantAdd(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "Local id (default: random uuid)")
	cmd.Flags().StringVar(&opts.Credential, "credential", "", "Credential id holding the OpenAI key")
	cmd.Flags().StringVar(&opts.RemoteID, "remote-id", "", "Remote assistant id (asst_...)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&opts.Instructions, "instructions", "", "Instructions shown as description")
	cmd.Flags().StringVar(&opts.Model, "model", "", "Model name, informational")
	cmd.Flags().StringSliceVar(&opts.Tools, "tools", nil, "Local tools offered by default")
	cmd.Flags().StringVar(&opts.IconSrc, "icon", "", "Icon URL")
	_ = cmd.MarkFlagRequired("credential")
	_ = cmd.MarkFlagRequired("remote-id")
	return cmd
}

func buildCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage stored credentials",
	}
	cmd.AddCommand(buildCredentialAddCmd())
	return cmd
}

func buildCredentialAddCmd() *cobra.Command {
	var id, name, apiKey string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store an OpenAI API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredentialAdd(cmd, id, name, apiKey)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Credential id (default: random uuid)")
	cmd.Flags().StringVar(&name, "name", "OpenAI", "Display name")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "OpenAI API key")
	_ = cmd.MarkFlagRequired("api-key")
	return cmd
}
