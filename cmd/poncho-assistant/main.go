// poncho-assistant - CLI для узла OpenAI Assistant.
//
// Основные команды:
//
//	poncho-assistant list
//	poncho-assistant run <assistant-id> "Plot last week sales"
//	poncho-assistant chat <assistant-id>
//	poncho-assistant clear <assistant-id> --chat-id <id>
//	poncho-assistant serve
//
// Настройка хранилища:
//
//	poncho-assistant migrate
//	poncho-assistant credential add --id openai-main --api-key $OPENAI_API_KEY
//	poncho-assistant assistant add --credential openai-main --remote-id asst_... --name Analyst
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Заполняется через ldflags при сборке.
var (
	version = "dev"
	commit  = "none"
)

// Глобальные флаги
var (
	configPath string
	debugFlag  bool
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildRootCmd собирает дерево команд. Вынесено из main() для тестов.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "poncho-assistant",
		Short:        "Run stored OpenAI assistants with local tools",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default: search ./, binary dir, ~/.poncho-assistants)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")

	rootCmd.AddCommand(
		buildListCmd(),
		buildRunCmd(),
		buildClearCmd(),
		buildChatCmd(),
		buildServeCmd(),
		buildMigrateCmd(),
		buildAssistantCmd(),
		buildCredentialCmd(),
	)
	return rootCmd
}
