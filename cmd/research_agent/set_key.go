package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/research-agent/internal/pipeline"
)

var setKeyCommand = &cobra.Command{
	Use:   "set-key",
	Short: "Store an encrypted API key or model preference for a user",
	Long: `Encrypts and stores a provider API key for a user. Providers: gemini, openai,
anthropic, google_search and google_search_cx.

--model-preference stores the preferred backend as "provider" or "provider:model".`,
	RunE: runSetKeyCmd,
}

var (
	setKeyUserID     string
	setKeyProvider   string
	setKeyValue      string
	setKeyPreference string
)

func init() {
	setKeyCommand.Flags().StringVar(&setKeyUserID, "user-id", "", "User owning the key")
	setKeyCommand.Flags().StringVar(&setKeyProvider, "provider", "", "Provider the key belongs to")
	setKeyCommand.Flags().StringVar(&setKeyValue, "key", "", "The API key (defaults to the RESEARCH_AGENT_KEY env var)")
	setKeyCommand.Flags().StringVar(&setKeyPreference, "model-preference", "", "Preferred LLM backend, e.g. openai:gpt-4o")
	_ = setKeyCommand.MarkFlagRequired("user-id")

	rootCmd.AddCommand(setKeyCommand)
}

func runSetKeyCmd(cmd *cobra.Command, _ []string) error {
	userID, err := uuid.Parse(setKeyUserID)
	if err != nil {
		return fmt.Errorf("--user-id must be a UUID: %w", err)
	}
	value := setKeyValue
	if value == "" {
		value = os.Getenv("RESEARCH_AGENT_KEY")
	}
	if setKeyProvider == "" && setKeyPreference == "" {
		return fmt.Errorf("either --provider or --model-preference must be provided")
	}
	if setKeyProvider != "" && value == "" {
		return fmt.Errorf("--key is required with --provider")
	}
	if setKeyPreference != "" {
		if p, _ := pipeline.ParseModelPreference(setKeyPreference); p == "" {
			return fmt.Errorf("unknown provider in model preference %q", setKeyPreference)
		}
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if setKeyProvider != "" {
		store, err := a.credentialStore()
		if err != nil {
			return err
		}
		if err := store.SetKey(ctx, userID, strings.ToLower(setKeyProvider), value); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Stored %s key for %s\n", setKeyProvider, userID)
	}
	if setKeyPreference != "" {
		if err := a.db.SetModelPreference(ctx, userID, strings.TrimSpace(setKeyPreference)); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Stored model preference %s for %s\n", setKeyPreference, userID)
	}
	return nil
}
