package user

import (
	"context"
	"github.com/ValentinKolb/netlevel/cmd/util"
	"github.com/ValentinKolb/netlevel/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.Client

	// UserCommands represents the user administration command group
	UserCommands = &cobra.Command{
		Use:                "user",
		Short:              "Administer the users of a server",
		Long:               "Administer the users of a server. Requires the user permission, or a server without users.",
		PersistentPreRunE:  setupUserClient,
		PersistentPostRunE: closeUserClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add subcommands to user command
	UserCommands.AddCommand(listCmd)
	UserCommands.AddCommand(addCmd)
	UserCommands.AddCommand(delCmd)
	UserCommands.AddCommand(passCmd)
	UserCommands.AddCommand(permCmd)
	UserCommands.AddCommand(baseCmd)

	// Add common client flags to the user command
	util.SetupClientFlags(UserCommands)

	// Add flags specific to add
	addCmd.Flags().String("perms", "", util.WrapString("Permissions merged onto the defaults, as JSON object (e.g. {\"put\":true})"))
}

// setupUserClient connects to the server and authenticates
func setupUserClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcClient, err = util.Connect(context.Background())
	return err
}

func closeUserClient(_ *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close()
}
