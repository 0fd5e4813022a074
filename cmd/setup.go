package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for Ziptraffic",
	Long:  `Configure OAuth credentials and set up the environment for Ziptraffic.`,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("📺 Ziptraffic Setup"))

	if _, err := os.Stat(".env"); err == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title("Found existing .env file").
			Description("Overwrite?").
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println(infoStyle.Render("Kept existing .env"))
			return nil
		}
	}

	env := make(map[string]string)

	if err := configureGCP(env); err != nil {
		return err
	}

	if err := configureOAuthCredentials(env); err != nil {
		return err
	}

	if err := writeEnvFile(env); err != nil {
		return err
	}

	if env["DCM_CLIENT_ID"] != "" && env["DCM_CLIENT_SECRET"] != "" {
		var authenticate bool
		if err := huh.NewConfirm().
			Title("Authenticate with Campaign Manager now?").
			Description("Opens browser to complete OAuth flow").
			Value(&authenticate).
			Run(); err != nil {
			return err
		}

		if authenticate {
			cfg := env["DCM_TOKEN_PATH"]
			if cfg == "" {
				cfg = "./dcm_token.json"
			}
			if err := runOAuthFlow(cmd.Context(), env["DCM_CLIENT_ID"], env["DCM_CLIENT_SECRET"], cfg); err != nil {
				fmt.Println(warnStyle.Render(fmt.Sprintf("OAuth flow failed: %v", err)))
				fmt.Println(infoStyle.Render("You can retry later with: ziptraffic auth login"))
			}
		}
	}

	return nil
}

func configureGCP(env map[string]string) error {
	var setupGCP bool
	if err := huh.NewConfirm().
		Title("Setup Google Cloud?").
		Description("Enables the Campaign Manager API and lets you store the client secret in Secret Manager").
		Value(&setupGCP).
		Run(); err != nil {
		return err
	}

	if !setupGCP {
		return nil
	}

	if !commandExists("gcloud") {
		fmt.Println(warnStyle.Render("gcloud CLI not found - install from https://cloud.google.com/sdk/docs/install"))
		return nil
	}

	project, err := getOrCreateGCPProject()
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("GCP setup skipped: %v", err)))
		return nil
	}

	env["GOOGLE_CLOUD_PROJECT"] = project

	if err := enableGCPAPIs(project); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("API enablement failed: %v", err)))
	}

	return nil
}

func getOrCreateGCPProject() (string, error) {
	existing := getActiveProject()

	var choice string
	options := []huh.Option[string]{
		huh.NewOption("Create new project", "new"),
	}

	if existing != "" {
		options = append([]huh.Option[string]{
			huh.NewOption(fmt.Sprintf("Use current: %s", existing), existing),
		}, options...)
	}

	options = append(options, huh.NewOption("Enter project ID manually", "manual"))

	if err := huh.NewSelect[string]().
		Title("Google Cloud Project").
		Options(options...).
		Value(&choice).
		Run(); err != nil {
		return "", err
	}

	switch choice {
	case "new":
		return createGCPProject()
	case "manual":
		var projectID string
		if err := huh.NewInput().
			Title("Project ID").
			Value(&projectID).
			Run(); err != nil {
			return "", err
		}
		return projectID, nil
	default:
		return choice, nil
	}
}

func getActiveProject() string {
	out, err := exec.Command("gcloud", "config", "get-value", "project").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func createGCPProject() (string, error) {
	var projectID string
	if err := huh.NewInput().
		Title("New Project ID").
		Description("Must be globally unique, 6-30 chars, lowercase letters, digits, hyphens").
		Placeholder("ziptraffic-12345").
		Value(&projectID).
		Validate(func(s string) error {
			if len(s) < 6 || len(s) > 30 {
				return fmt.Errorf("must be 6-30 characters")
			}
			return nil
		}).
		Run(); err != nil {
		return "", err
	}

	err := runWithSpinner("Creating project", func() error {
		return runSetupCmd("gcloud", "projects", "create", projectID)
	})
	if err != nil {
		return "", err
	}

	_ = runSetupCmd("gcloud", "config", "set", "project", projectID)

	return projectID, nil
}

func enableGCPAPIs(project string) error {
	apis := []string{
		"dfareporting.googleapis.com",
		"secretmanager.googleapis.com",
	}

	return runWithSpinner("Enabling APIs", func() error {
		args := append([]string{"services", "enable"}, apis...)
		args = append(args, "--project", project)
		return runSetupCmd("gcloud", args...)
	})
}

func configureOAuthCredentials(env map[string]string) error {
	fmt.Println(infoStyle.Render(`
To create OAuth credentials:
1. Go to https://console.cloud.google.com/apis/credentials
2. Click "Create Credentials" → "OAuth client ID"
3. Choose "Desktop app" as application type
4. Copy the Client ID and Client Secret
`))

	var clientID, clientSecret string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Campaign Manager Client ID").
				Value(&clientID).
				Validate(required("Client ID")),
			huh.NewInput().
				Title("Campaign Manager Client Secret").
				EchoMode(huh.EchoModePassword).
				Value(&clientSecret),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	env["DCM_CLIENT_ID"] = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)

	if clientSecret != "" && env["GOOGLE_CLOUD_PROJECT"] != "" {
		stored, err := storeSecretInManager(env, clientSecret)
		if err != nil {
			fmt.Println(warnStyle.Render(fmt.Sprintf("Secret Manager skipped: %v", err)))
		}
		if stored {
			return nil
		}
	}

	env["DCM_CLIENT_SECRET"] = clientSecret
	return nil
}

// storeSecretInManager offers to keep the client secret out of .env by
// creating a Secret Manager secret and recording its resource name instead.
func storeSecretInManager(env map[string]string, clientSecret string) (bool, error) {
	var store bool
	if err := huh.NewConfirm().
		Title("Store client secret in Secret Manager?").
		Description("Keeps the secret out of the .env file").
		Value(&store).
		Run(); err != nil || !store {
		return false, err
	}

	project := env["GOOGLE_CLOUD_PROJECT"]

	err := runWithSpinner("Creating secret", func() error {
		cmd := exec.Command("gcloud", "secrets", "create", "dcm-client-secret",
			"--project", project, "--replication-policy", "automatic", "--data-file", "-")
		cmd.Stdin = strings.NewReader(clientSecret)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s: %s", err, stderr.String())
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	env["DCM_CLIENT_SECRET_NAME"] = fmt.Sprintf("projects/%s/secrets/dcm-client-secret/versions/latest", project)
	return true, nil
}

func writeEnvFile(env map[string]string) error {
	f, err := os.Create(".env")
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	order := []string{
		"GOOGLE_CLOUD_PROJECT",
		"DCM_CLIENT_ID",
		"DCM_CLIENT_SECRET",
		"DCM_CLIENT_SECRET_NAME",
		"DCM_TOKEN_PATH",
	}

	for _, key := range order {
		if val, ok := env[key]; ok && val != "" {
			_, _ = fmt.Fprintf(f, "%s=%s\n", key, val)
		}
	}

	fmt.Println(successStyle.Render("✓ Created .env file"))
	printNextSteps()
	return nil
}

func printNextSteps() {
	fmt.Println()
	fmt.Println(titleStyle.Render("Next steps:"))
	fmt.Println("  1. Authenticate: ziptraffic auth login")
	fmt.Println("  2. Run: ziptraffic upload <profile-id> <advertiser-id> <campaign-id> <placement-id> manifest.csv success.csv failure.csv")
}

func required(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func runSetupCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, stderr.String())
	}
	return nil
}

func runWithSpinner(title string, fn func() error) error {
	var err error
	_ = spinner.New().
		Title(title).
		Action(func() { err = fn() }).
		Run()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}
