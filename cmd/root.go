package cmd

import (
	"fmt"
	"github.com/ValentinKolb/netlevel/cmd/base"
	"github.com/ValentinKolb/netlevel/cmd/serve"
	"github.com/ValentinKolb/netlevel/cmd/user"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "netlevel",
		Short: "network access to an embedded key-value store",
		Long: fmt.Sprintf(`netlevel (v%s)

Serves named, ordered key-value databases over a line-delimited
JSON protocol, with per-user and per-base permissions.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of netlevel",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("netlevel v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(base.BaseCommands)
	RootCmd.AddCommand(user.UserCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
