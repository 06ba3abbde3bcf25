package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/muesli/reflow/truncate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ilkoid/poncho-assistants/internal/server"
	"github.com/ilkoid/poncho-assistants/pkg/app"
	"github.com/ilkoid/poncho-assistants/pkg/config"
	"github.com/ilkoid/poncho-assistants/pkg/credentials"
	"github.com/ilkoid/poncho-assistants/pkg/events"
	"github.com/ilkoid/poncho-assistants/pkg/store"
	"github.com/ilkoid/poncho-assistants/pkg/tui"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// loadConfig находит и читает конфиг, затем поднимает логгер.
// Вызывающий обязан сделать defer utils.Close().
func loadConfig() (*config.AppConfig, error) {
	cfg, cfgPath, err := app.InitializeConfig(&app.DefaultConfigPathFinder{ConfigFlag: configPath})
	if err != nil {
		return nil, err
	}

	if err := utils.InitLogger(cfg.App.LogsDir, "poncho-assistant"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to init logger: %v\n", err)
	}
	utils.SetDebug(debugFlag || cfg.App.Debug)
	utils.Info("Config loaded", "path", cfgPath, "driver", cfg.Database.Driver)
	return cfg, nil
}

// openComponents - loadConfig + app.Initialize.
func openComponents(ctx context.Context, opts app.Options) (*app.Components, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Initialize(ctx, cfg, opts)
}

// openDB открывает базу и создаёт таблицы. Для команд настройки хранилища.
func openDB(ctx context.Context) (*store.AssistantRepo, *store.CredentialRepo, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return store.NewAssistantRepo(db), store.NewCredentialRepo(db), func() { db.Close() }, nil
}

func runList(cmd *cobra.Command, asJSON bool) error {
	defer utils.Close()

	comps, err := openComponents(cmd.Context(), app.Options{})
	if err != nil {
		return err
	}
	defer comps.Close()

	options, err := comps.ListAssistants(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, options)
	}
	if len(options) == 0 {
		fmt.Fprintln(out, "No assistants stored. Add one with: poncho-assistant assistant add")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "INSTRUCTIONS")
	for _, o := range options {
		t.Row(o.Name, o.Label, truncate.StringWithTail(oneLine(o.Description), 60, "..."))
	}
	fmt.Fprintln(out, t.String())
	return nil
}

func runRun(cmd *cobra.Command, assistantID, input, chatID string, tools []string, asJSON bool) error {
	defer utils.Close()

	comps, err := openComponents(cmd.Context(), app.Options{})
	if err != nil {
		return err
	}
	defer comps.Close()

	resp, err := comps.Run(cmd.Context(), app.RunRequest{
		AssistantID: assistantID,
		ChatID:      chatID,
		Input:       input,
		Tools:       tools,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, resp)
	}

	fmt.Fprintln(out, resp.Text)
	for _, used := range resp.UsedTools {
		fmt.Fprintf(out, "  [tool] %s -> %s\n", used.Tool, truncate.StringWithTail(oneLine(used.ToolOutput), 80, "..."))
	}
	fmt.Fprintf(out, "chat: %s  thread: %s  (%s)\n", resp.ChatID, resp.Assistant.ThreadID, resp.Duration.Round(time.Millisecond))
	return nil
}

func runClear(cmd *cobra.Command, assistantID, sessionID, chatID string) error {
	defer utils.Close()

	if sessionID == "" && chatID == "" {
		return fmt.Errorf("either --session-id or --chat-id is required")
	}

	comps, err := openComponents(cmd.Context(), app.Options{})
	if err != nil {
		return err
	}
	defer comps.Close()

	cleared := comps.ClearSession(cmd.Context(), assistantID, sessionID, chatID)
	fmt.Fprintf(cmd.OutOrStdout(), "cleared: %t\n", cleared)
	return nil
}

func runChat(cmd *cobra.Command, assistantID, chatID, theme string, clearOnExit bool) error {
	defer utils.Close()

	ctx, cleanup := utils.SetupGracefulShutdownWithContext()
	defer cleanup()

	emitter := events.NewChanEmitter(64)
	defer emitter.Close()

	comps, err := openComponents(ctx, app.Options{Emitter: emitter})
	if err != nil {
		return err
	}
	defer comps.Close()

	name := assistantID
	if options, err := comps.ListAssistants(ctx); err == nil {
		for _, o := range options {
			if o.Name == assistantID {
				name = o.Label
			}
		}
	}

	chat := tui.NewChatTui(emitter.Subscribe(), tui.ChatConfig{
		Colors:        tui.GetColorScheme(theme),
		Assistant:     name,
		ShowTimestamp: true,
		ShowThreads:   true,
	})

	// run'ы отменяются при выходе из TUI, узел сам отменит удалённый run
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	var mu sync.Mutex
	// Ввод обрабатывается последовательно: TUI не шлёт новый, пока run не завершён.
	chat.OnInput(func(input string) {
		mu.Lock()
		defer mu.Unlock()
		resp, err := comps.Run(runCtx, app.RunRequest{AssistantID: assistantID, ChatID: chatID, Input: input})
		if err != nil {
			// узел уже отправил EventError
			utils.Error("Chat turn failed", "assistant", assistantID, "error", err)
			return
		}
		chatID = resp.ChatID
	})

	utils.Info("Starting chat TUI", "assistant", assistantID, "chat_id", chatID)
	if err := chat.Run(ctx); err != nil {
		return err
	}

	cancelRuns()
	mu.Lock()
	defer mu.Unlock()

	if clearOnExit && chatID != "" {
		clearCtx, cancel := context.WithTimeout(context.Background(), comps.Config.OpenAI.Timeout)
		defer cancel()
		cleared := comps.ClearSession(clearCtx, assistantID, "", chatID)
		fmt.Fprintf(cmd.OutOrStdout(), "chat %s cleared: %t\n", chatID, cleared)
	} else if chatID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "chat id: %s\n", chatID)
	}
	return nil
}

func runServe(cmd *cobra.Command, addr string) error {
	defer utils.Close()

	ctx, cleanup := utils.SetupGracefulShutdownWithContext()
	defer cleanup()

	comps, err := openComponents(ctx, app.Options{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}
	defer comps.Close()

	// сервер пишет лог в stderr, его собирает окружение
	utils.SetOutput(os.Stderr)

	if addr == "" {
		addr = comps.Config.Server.Addr
	}
	router := server.New(comps.Config.Server, comps, prometheus.DefaultGatherer)
	return server.ListenAndServe(ctx, addr, router)
}

func runMigrate(cmd *cobra.Command) error {
	defer utils.Close()

	_, _, closeDB, err := openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
	return nil
}

type assistantAddOptions struct {
	ID           string
	Credential   string
	RemoteID     string
	Name         string
	Instructions string
	Model        string
	Tools        []string
	IconSrc      string
}

func runAssistantAdd(cmd *cobra.Command, opts assistantAddOptions) error {
	defer utils.Close()

	assistants, creds, closeDB, err := openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	// credential должен существовать, иначе узел упадёт на первом же run
	if _, err := creds.Get(cmd.Context(), opts.Credential); err != nil {
		return fmt.Errorf("credential '%s': %w", opts.Credential, err)
	}

	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	details, err := json.Marshal(store.AssistantDetails{
		ID:           opts.RemoteID,
		Name:         opts.Name,
		Model:        opts.Model,
		Instructions: opts.Instructions,
		Tools:        opts.Tools,
	})
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	err = assistants.Save(cmd.Context(), &store.StoredAssistant{
		ID:         opts.ID,
		Credential: opts.Credential,
		Details:    string(details),
		IconSrc:    opts.IconSrc,
	})
	if err != nil {
		return err
	}

	utils.Info("Assistant stored", "id", opts.ID, "remote_id", opts.RemoteID)
	fmt.Fprintln(cmd.OutOrStdout(), opts.ID)
	return nil
}

func runCredentialAdd(cmd *cobra.Command, id, name, apiKey string) error {
	defer utils.Close()

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("--api-key must not be empty")
	}

	_, creds, closeDB, err := openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	if id == "" {
		id = uuid.NewString()
	}
	data, err := json.Marshal(map[string]string{credentials.ParamOpenAIAPIKey: apiKey})
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	err = creds.Save(cmd.Context(), &store.Credential{
		ID:             id,
		Name:           name,
		CredentialName: credentials.TypeOpenAI,
		Data:           string(data),
	})
	if err != nil {
		return err
	}

	utils.Info("Credential stored", "id", id, "key", maskKey(apiKey))
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// maskKey показывает первые 8 символов ключа для идентификации.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "..."
}
