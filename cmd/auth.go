package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"ziptraffic/internal/dcm"
	"ziptraffic/pkg/config"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var (
	authInfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	authSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	authErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with Campaign Manager",
	Long:  `Complete the Campaign Manager OAuth flow using credentials from .env`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run the OAuth flow and save a token",
	RunE:  runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check authentication status",
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(authInfoStyle.Render("\nAuthentication Status:\n"))

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		fmt.Println(authErrorStyle.Render("✗ Campaign Manager: missing DCM_CLIENT_ID or DCM_CLIENT_SECRET"))
		return nil
	}

	auth := dcm.NewAuth(cfg.ClientID, cfg.ClientSecret, cfg.TokenPath)
	if auth.IsAuthenticated() {
		fmt.Println(authSuccessStyle.Render("✓ Campaign Manager: authenticated"))
	} else if _, err := os.Stat(cfg.TokenPath); err == nil {
		fmt.Println(authErrorStyle.Render("✗ Campaign Manager: token expired"))
		fmt.Println(authInfoStyle.Render("  Run: ziptraffic auth login"))
	} else {
		fmt.Println(authErrorStyle.Render("✗ Campaign Manager: credentials set, but not authenticated"))
		fmt.Println(authInfoStyle.Render("  Run: ziptraffic auth login"))
	}

	fmt.Println()
	return nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return fmt.Errorf("DCM_CLIENT_ID and DCM_CLIENT_SECRET must be set in .env")
	}

	return runOAuthFlow(cmd.Context(), cfg.ClientID, cfg.ClientSecret, cfg.TokenPath)
}

func runOAuthFlow(ctx context.Context, clientID, clientSecret, tokenPath string) error {
	auth := dcm.NewAuth(clientID, clientSecret, tokenPath)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	listener, err := net.Listen("tcp", ":8085")
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}

	server := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
	}

	server.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			_, _ = fmt.Fprintf(w, "<html><body><h1>Error</h1><p>No authorization code received.</p></body></html>")
			return
		}

		codeChan <- code
		_, _ = fmt.Fprintf(w, "<html><body><h1>Success!</h1><p>You can close this window and return to the terminal.</p></body></html>")
	})

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	authURL := auth.AuthCodeURL()
	fmt.Println(authInfoStyle.Render("\nOpening browser for Campaign Manager authentication..."))
	fmt.Println(authInfoStyle.Render("If browser doesn't open, visit:\n" + authURL))

	_ = browser.OpenURL(authURL)

	fmt.Println(authInfoStyle.Render("\nWaiting for authentication..."))

	select {
	case code := <-codeChan:
		if err := auth.Exchange(ctx, code); err != nil {
			return err
		}
		fmt.Println(authSuccessStyle.Render("✓ Campaign Manager authentication complete"))
		fmt.Println(authSuccessStyle.Render("  Token saved to: " + tokenPath))
		return nil

	case err := <-errChan:
		return err

	case <-time.After(5 * time.Minute):
		return fmt.Errorf("authentication timed out")
	}
}
