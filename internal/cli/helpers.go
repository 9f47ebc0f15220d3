package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/nhle/pmsync/internal/credential"
	"github.com/nhle/pmsync/internal/source/jira"
	"github.com/nhle/pmsync/internal/store"
	appsync "github.com/nhle/pmsync/internal/sync"
)

// openStore opens the configured store.
func openStore() (*store.SQLStore, error) {
	s, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

// newRemote builds the Jira adapter from config and the stored token.
func newRemote() (*jira.Adapter, error) {
	if cfg.Jira.BaseURL == "" {
		return nil, errors.New("jira.base_url is not configured; run `pmsync auth login`")
	}
	token, err := credential.JiraToken()
	if err != nil {
		return nil, err
	}
	return jira.FromConfig(cfg.Jira, token), nil
}

func newOrchestrator(s store.Store, remote *jira.Adapter) *appsync.Orchestrator {
	return appsync.NewOrchestrator(s, remote, appsync.Options{
		ProjectKeys:      cfg.Jira.ProjectKeys,
		FetchConcurrency: cfg.Sync.FetchConcurrency,
		StaleAfter:       2 * cfg.Sync.RunTimeout(),
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// requireTerminal fails when stdin is not a terminal, before an
// interactive form would block on it.
func requireTerminal(what string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("%s needs an interactive terminal", what)
	}
	return nil
}

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// render writes v as JSON or YAML, or calls text for the human format.
func render(w io.Writer, format string, v interface{}, text func(io.Writer) error) error {
	switch format {
	case "", outputText:
		return text(w)
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json, or yaml)", format)
	}
}
