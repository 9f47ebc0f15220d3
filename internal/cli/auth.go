package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/pmsync/internal/credential"
	"github.com/nhle/pmsync/internal/logger"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/source/jira"
)

// validateTimeout bounds the connection check during login and status.
const validateTimeout = 15 * time.Second

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Jira connection",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Connect to Jira and store the token in the system keyring",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored Jira token",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the configured Jira connection",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
}

// loginForm holds the answers of the login prompt.
type loginForm struct {
	BaseURL string
	Auth    string
	Email   string
	Token   string
}

func (f *loginForm) run() error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Base URL").
				Description("Jira server URL (e.g., https://example.atlassian.net)").
				Placeholder("https://example.atlassian.net").
				Value(&f.BaseURL).
				Validate(validateURL),
			huh.NewSelect[string]().
				Title("Authentication").
				Options(
					huh.NewOption("Jira Cloud (email + API token)", "basic"),
					huh.NewOption("Jira Server / Data Center (personal access token)", "bearer"),
				).
				Value(&f.Auth),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Description("Atlassian account email").
				Value(&f.Email).
				Validate(validateRequired("Email")),
		).WithHideFunc(func() bool { return f.Auth != "basic" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Token").
				Description("API token or personal access token").
				EchoMode(huh.EchoModePassword).
				Value(&f.Token).
				Validate(validateRequired("Token")),
		),
	).Run()
}

func (f loginForm) apply(c model.JiraConfig) model.JiraConfig {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(f.BaseURL), "/")
	c.Auth = f.Auth
	c.Email = ""
	if f.Auth == "basic" {
		c.Email = strings.TrimSpace(f.Email)
	}
	return c
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	if err := requireTerminal("auth login"); err != nil {
		return fmt.Errorf("%w; set %s instead", err, credential.TokenEnv)
	}

	form := loginForm{
		BaseURL: cfg.Jira.BaseURL,
		Auth:    cfg.Jira.Auth,
		Email:   cfg.Jira.Email,
	}
	if form.Auth == "" {
		form.Auth = "basic"
	}
	if err := form.run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}

	jc := form.apply(cfg.Jira)
	token := strings.TrimSpace(form.Token)

	ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
	defer cancel()
	name, err := jira.FromConfig(jc, token).ValidateConnection(ctx)
	if err != nil {
		return err
	}

	if err := credential.Set(credential.JiraTokenKey, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	cfg.Jira = jc
	if err := model.SaveConfig(configPath, cfg); err != nil {
		return err
	}

	logger.Info("jira login", logger.F("base_url", jc.BaseURL), logger.F("auth", jc.Auth))
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Connected to %s as %s\n", jc.BaseURL, name)
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	if err := credential.Delete(credential.JiraTokenKey); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Removed stored Jira token")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	remote, err := newRemote()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
	defer cancel()
	name, err := remote.ValidateConnection(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s (%s auth) as %s\n", cfg.Jira.BaseURL, cfg.Jira.Auth, name)
	return nil
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.atlassian.net)")
	}
	return nil
}
