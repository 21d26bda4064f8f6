package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/polichat/polichat/api"
	"github.com/polichat/polichat/chat"
	"github.com/polichat/polichat/config"
	"github.com/polichat/polichat/history"
	"github.com/polichat/polichat/internal/logging"
	"github.com/polichat/polichat/stream"
	"github.com/polichat/polichat/tui"
)

var (
	// Flags
	apiURL       string
	token        string
	userEmail    string
	verbose      bool
	continueConv bool
	resumeChatID string

	// Root command
	rootCmd = &cobra.Command{
		Use:   "polichat",
		Short: "Chat corporativo sobre políticas internas",
		Long:  "Polichat - cliente de terminal para el chat de políticas internas, con respuestas en streaming y herramientas de consulta del lado del servidor",
		RunE:  runTUI,
	}

	// Ask command for one-shot questions
	askCmd = &cobra.Command{
		Use:   "ask [pregunta]",
		Short: "Hacer una pregunta sin entrar al TUI",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	// Chats command group
	chatsCmd = &cobra.Command{
		Use:   "chats",
		Short: "Gestión de conversaciones guardadas",
	}

	listChatsCmd = &cobra.Command{
		Use:   "list",
		Short: "Listar conversaciones del usuario",
		RunE:  runListChats,
	}

	renameChatCmd = &cobra.Command{
		Use:   "rename [chatId] [título]",
		Short: "Renombrar una conversación",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runRenameChat,
	}

	deleteChatCmd = &cobra.Command{
		Use:   "delete [chatId]",
		Short: "Borrar una conversación",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeleteChat,
	}

	downloadChatCmd = &cobra.Command{
		Use:   "download [chatId]",
		Short: "Descargar una conversación como texto",
		Args:  cobra.ExactArgs(1),
		RunE:  runDownloadChat,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "URL base del servicio de chat")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Token bearer para el servicio")
	rootCmd.PersistentFlags().StringVar(&userEmail, "user", "", "Correo del usuario")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Salida detallada")

	rootCmd.Flags().BoolVarP(&continueConv, "continue", "c", false, "Continuar la última conversación")
	rootCmd.Flags().StringVarP(&resumeChatID, "resume", "r", "", "Retomar una conversación por id")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatsCmd)
	chatsCmd.AddCommand(listChatsCmd)
	chatsCmd.AddCommand(renameChatCmd)
	chatsCmd.AddCommand(deleteChatCmd)
	chatsCmd.AddCommand(downloadChatCmd)

	viper.BindPFlags(rootCmd.PersistentFlags())
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newGateway resolves configuration (flags > env > config file) and builds
// the service client.
func newGateway() (*api.Client, *config.Manager, error) {
	level := os.Getenv("POLICHAT_LOG_LEVEL")
	if verbose {
		level = "debug"
	}
	if err := logging.Configure(level, os.Getenv("POLICHAT_LOG_FILE")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not configure logging: %v\n", err)
	}

	configManager, err := config.NewManager()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	baseURL := apiURL
	if baseURL == "" {
		baseURL = os.Getenv("POLICHAT_API_URL")
	}
	if baseURL == "" {
		baseURL = configManager.GetAPIBaseURL()
	}
	if baseURL == "" {
		return nil, nil, fmt.Errorf("no chat service URL configured (use --api-url or POLICHAT_API_URL)")
	}

	bearer := token
	if bearer == "" {
		bearer = os.Getenv("POLICHAT_TOKEN")
	}

	email := userEmail
	if email == "" {
		email = os.Getenv("POLICHAT_USER_EMAIL")
	}
	if email == "" {
		email = configManager.GetUserEmail()
	}

	// Remember the working coordinates for the next run.
	if baseURL != configManager.GetAPIBaseURL() || email != configManager.GetUserEmail() {
		if err := configManager.SetDefaults(baseURL, email); err != nil {
			logging.Logger.Warn("failed to save config", "error", err)
		}
	}

	gw, err := api.NewClient(
		api.WithBaseURL(baseURL),
		api.WithToken(bearer),
		api.WithUserEmail(email),
	)
	if err != nil {
		return nil, nil, err
	}
	return gw, configManager, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	gw, configManager, err := newGateway()
	if err != nil {
		return err
	}

	cache, err := history.NewCache()
	if err != nil {
		logging.Logger.Warn("local transcript cache unavailable", "error", err)
	}

	store := history.NewStore()
	store.SetPinnedChatID(configManager.GetPinnedChatID())

	chatID := strings.TrimSpace(resumeChatID)
	if chatID == "" && continueConv && cache != nil {
		chatID = cache.LastChatID()
	}
	if chatID == "" {
		chatID = configManager.GetPinnedChatID()
	}

	app := tui.NewChatTUI(gw, store, cache, configManager, chatID)

	if chatID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		messages, err := gw.LoadChat(ctx, chatID)
		cancel()
		if err != nil && cache != nil {
			if session, cacheErr := cache.Load(chatID); cacheErr == nil {
				messages = session.Messages
			}
		}
		store.Set(messages)
	}

	p := tea.NewProgram(app)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runAsk streams one answer to stdout without the TUI.
func runAsk(cmd *cobra.Command, args []string) error {
	gw, _, err := newGateway()
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	store := history.NewStore()
	user := store.NewUserMessage(question)
	store.Add(user)

	chatID := chat.NewChatID()
	printed := 0
	ctrl := stream.New(gw, chatID, stream.Options{
		OnMessageUpdate: func(msg chat.Message) {
			if len(msg.Content) > printed {
				fmt.Print(msg.Content[printed:])
				printed = len(msg.Content)
			}
		},
		GetMessages: store.Messages,
	})

	final, err := ctrl.Start(context.Background(), store.Messages())
	if err != nil {
		return err
	}
	if final != nil && len(final.Content) > printed {
		fmt.Print(final.Content[printed:])
	}
	fmt.Println()
	return nil
}

func runListChats(cmd *cobra.Command, args []string) error {
	gw, _, err := newGateway()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	chats, err := gw.UserChats(ctx)
	if err != nil {
		return err
	}

	buckets := []struct {
		label    string
		sessions []chat.Session
	}{
		{"Hoy", chats.Today},
		{"Ayer", chats.Yesterday},
		{"Última semana", chats.LastWeek},
		{"Último mes", chats.LastMonth},
		{"Anteriores", chats.Older},
	}

	total := 0
	for _, b := range buckets {
		if len(b.sessions) == 0 {
			continue
		}
		fmt.Printf("%s:\n", b.label)
		for _, s := range b.sessions {
			title := s.Title
			if title == "" {
				title = chat.DeriveTitle(s.Messages)
			}
			fmt.Printf("  %s  %s\n", s.ChatID, title)
			total++
		}
	}
	if total == 0 {
		fmt.Println("No hay conversaciones guardadas.")
	}
	return nil
}

func runRenameChat(cmd *cobra.Command, args []string) error {
	gw, _, err := newGateway()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	title := strings.Join(args[1:], " ")
	if err := gw.RenameChat(ctx, args[0], title); err != nil {
		return err
	}
	fmt.Printf("Conversación %s renombrada a %q\n", args[0], title)
	return nil
}

func runDeleteChat(cmd *cobra.Command, args []string) error {
	gw, configManager, err := newGateway()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := gw.DeleteChat(ctx, args[0]); err != nil {
		return err
	}
	if cache, cacheErr := history.NewCache(); cacheErr == nil {
		if err := cache.Delete(args[0]); err != nil {
			logging.Logger.Warn("failed to drop cached transcript", "chatId", args[0], "error", err)
		}
	}
	if configManager.GetPinnedChatID() == args[0] {
		if err := configManager.SetPinnedChatID(""); err != nil {
			logging.Logger.Warn("failed to clear pinned chat", "error", err)
		}
	}
	fmt.Printf("Conversación %s borrada\n", args[0])
	return nil
}

func runDownloadChat(cmd *cobra.Command, args []string) error {
	gw, _, err := newGateway()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := gw.DownloadChat(ctx, args[0])
	if err != nil {
		return err
	}

	path := fmt.Sprintf("polichat_%s.txt", args[0])
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Conversación guardada en %s\n", path)
	return nil
}
