package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailherald/mailherald/internal/config"
	"github.com/mailherald/mailherald/internal/userstore"
)

// usersCmd lists the users with a stored Gmail credential.
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List authorized users",
	Long: `List the chats with a stored Gmail credential, with authorization
time and credential state.

Example:
  mailherald users --config config.yaml --json`,
	RunE: runUsers,
}

func init() {
	RootCmd.AddCommand(usersCmd)
}

type userRow struct {
	ChatID       int64  `json:"chat_id"`
	AuthorizedAt string `json:"authorized_at,omitempty"`
	TokenState   string `json:"token_state"`
}

func runUsers(cmd *cobra.Command, args []string) error {
	dataDir := globalFlags.DataDir
	if dataDir == "" {
		cfg, err := config.NewLoader(globalFlags.Config).Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		dataDir = cfg.Storage.DataDir
	}

	users := userstore.NewStore(filepath.Join(dataDir, "users"))

	rows := make([]userRow, 0)
	for _, chatID := range users.ListUsers() {
		row := userRow{ChatID: chatID, TokenState: credentialState(users.LoadCredential(chatID))}
		if meta := users.LoadMeta(chatID); meta != nil {
			row.AuthorizedAt = time.Unix(meta.AuthorizedAt, 0).UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}

	if globalFlags.JSON {
		return json.NewEncoder(os.Stdout).Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No authorized users.")
		return nil
	}

	fmt.Printf("%-15s %-22s %s\n", "CHAT ID", "AUTHORIZED AT", "TOKEN")
	for _, row := range rows {
		authorized := row.AuthorizedAt
		if authorized == "" {
			authorized = "-"
		}
		fmt.Printf("%-15d %-22s %s\n", row.ChatID, authorized, row.TokenState)
	}
	return nil
}

func credentialState(cred *userstore.Credential) string {
	switch {
	case cred == nil:
		return "missing"
	case cred.Valid():
		return "valid"
	case cred.Refreshable():
		return "refreshable"
	default:
		return "expired"
	}
}
