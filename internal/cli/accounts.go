package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/qqgate/qqgate/internal/channel"
	"github.com/qqgate/qqgate/internal/config"
	"github.com/qqgate/qqgate/pkg/pluginsdk"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect and edit QQ accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	RunE:  runAccountsList,
}

var accountsSetCmd = &cobra.Command{
	Use:   "set <account-id>",
	Short: "Set account credentials or settings",
	Long: `Write credentials or settings into the named account block.
Only the supplied flags are written; other fields are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountsSet,
}

var (
	setAppID        string
	setClientSecret string
	setName         string
	setEnabled      bool
)

func init() {
	accountsSetCmd.Flags().StringVar(&setAppID, "app-id", "", "Bot AppID")
	accountsSetCmd.Flags().StringVar(&setClientSecret, "client-secret", "", "Bot ClientSecret")
	accountsSetCmd.Flags().StringVar(&setName, "name", "", "Display name")
	accountsSetCmd.Flags().BoolVar(&setEnabled, "enabled", true, "Enable or disable the account")

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsSetCmd)
}

func newChannel() (*channel.QQ, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return channel.New(config.NewCache(cfg, time.Minute), logger), nil
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	qq, err := newChannel()
	if err != nil {
		return err
	}

	snapshots := make([]pluginsdk.AccountSnapshot, 0)
	for _, id := range qq.Accounts() {
		snap, err := qq.ResolveAccount(id)
		if err != nil {
			return err
		}
		snapshots = append(snapshots, snap)
	}

	out, err := yaml.Marshal(snapshots)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func runAccountsSet(cmd *cobra.Command, args []string) error {
	qq, err := newChannel()
	if err != nil {
		return err
	}

	patch := pluginsdk.AccountPatch{}
	if cmd.Flags().Changed("app-id") {
		patch.AppID = &setAppID
	}
	if cmd.Flags().Changed("client-secret") {
		patch.ClientSecret = &setClientSecret
	}
	if cmd.Flags().Changed("name") {
		patch.Name = &setName
	}
	if cmd.Flags().Changed("enabled") {
		patch.Enabled = &setEnabled
	}

	if err := qq.ApplyAccountConfig(args[0], patch); err != nil {
		return err
	}

	snap, err := qq.ResolveAccount(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "account %s: configured=%v source=%s\n",
		snap.AccountID, snap.Configured, snap.SecretSource)
	return nil
}
