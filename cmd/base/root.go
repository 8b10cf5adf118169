package base

import (
	"context"
	"github.com/ValentinKolb/netlevel/cmd/util"
	"github.com/ValentinKolb/netlevel/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.Client

	// BaseCommands represents the base command group
	BaseCommands = &cobra.Command{
		Use:                "base",
		Short:              "Perform key-value operations on a base",
		PersistentPreRunE:  setupBaseClient,
		PersistentPostRunE: closeBaseClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common client flags to the base command
	util.SetupClientFlags(BaseCommands)

	// Add subcommands
	BaseCommands.AddCommand(getCmd)
	BaseCommands.AddCommand(putCmd)
	BaseCommands.AddCommand(delCmd)
	BaseCommands.AddCommand(listCmd)
	BaseCommands.AddCommand(clearCmd)
	BaseCommands.AddCommand(statCmd)
	BaseCommands.AddCommand(dropCmd)
	BaseCommands.AddCommand(cloneCmd)

	setupRangeFlags(listCmd)
	setupRangeFlags(clearCmd)
	listCmd.Flags().Int64("limit", 0, util.WrapString("Maximum number of rows (0 for the server limit)"))
	listCmd.Flags().Int64("skip", 0, util.WrapString("Number of matching rows to skip"))
	listCmd.Flags().Bool("reverse", false, util.WrapString("Iterate in reverse key order"))
	listCmd.Flags().Bool("keys", false, util.WrapString("List only the keys"))
	listCmd.Flags().Bool("del", false, util.WrapString("Delete the listed keys"))
	listCmd.Flags().Bool("all", false, util.WrapString("Continue the listing page by page until the range is exhausted"))
}

// setupBaseClient connects to the server and prepares the session
func setupBaseClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcClient, err = util.Connect(context.Background())
	return err
}

func closeBaseClient(_ *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close()
}
