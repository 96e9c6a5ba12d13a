package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genesis-ai-dev/langquest-sub009/internal/config"
	"github.com/genesis-ai-dev/langquest-sub009/internal/localstore"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage device preferences",
	Long: `Manage device preferences in the local store.

The local store survives database resets and is included in migration
backups.

Subcommands:
  list               List all keys and values
  get <key>          Print one value as JSON
  set <key> <value>  Set a value (JSON, or a plain string)
  delete <key>       Remove a key`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var prefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return commandError("prefs list", err)
		}
		w := cmd.OutOrStdout()
		keys := store.Keys()
		if len(keys) == 0 {
			printf(w, "No preferences set.\n")
			return nil
		}
		for _, k := range keys {
			var raw json.RawMessage
			if _, err := store.Get(k, &raw); err != nil {
				return commandError("prefs list", err)
			}
			printf(w, "%s = %s\n", k, raw)
		}
		return nil
	},
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return commandError("prefs get", err)
		}
		var raw json.RawMessage
		ok, err := store.Get(args[0], &raw)
		if err != nil {
			return commandError("prefs get", err)
		}
		if !ok {
			return commandError("prefs get", fmt.Errorf("preference %q not set", args[0]))
		}
		printf(cmd.OutOrStdout(), "%s\n", raw)
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return commandError("prefs set", err)
		}
		if err := store.Set(args[0], parseValue(args[1])); err != nil {
			return commandError("prefs set", err)
		}
		printf(cmd.OutOrStdout(), "Set %s.\n", args[0])
		return nil
	},
}

var prefsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return commandError("prefs delete", err)
		}
		if err := store.Delete(args[0]); err != nil {
			return commandError("prefs delete", err)
		}
		printf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
		return nil
	},
}

func init() {
	prefsCmd.AddCommand(prefsListCmd)
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsDeleteCmd)
}

func openLocalStore() (*localstore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store := localstore.NewStore(config.GetPaths(cfg).LocalStore)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load local store: %w", err)
	}
	return store, nil
}

// parseValue keeps valid JSON as-is and treats anything else as a string.
func parseValue(s string) interface{} {
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		return raw
	}
	return s
}
