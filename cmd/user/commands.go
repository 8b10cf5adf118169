package user

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/spf13/cobra"
)

var (
	listCmd = &cobra.Command{
		Use:   "list [name]",
		Short: "Lists the users, or describes one user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if len(args) == 0 {
				names, err := rpcClient.Users(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			}

			desc, err := rpcClient.DescribeUser(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(desc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	addCmd = &cobra.Command{
		Use:   "add [name] [password]",
		Short: "Creates a user with the default permissions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			perms, _ := cmd.Flags().GetString("perms")
			if err := rpcClient.AddUser(context.Background(), args[0], args[1], jsonObject(perms)); err != nil {
				return err
			}
			fmt.Printf("user %s added\n", args[0])
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [name]",
		Short: "Deletes a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.DeleteUser(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("user %s deleted\n", args[0])
			return nil
		},
	}
	passCmd = &cobra.Command{
		Use:   "pass [name] [password]",
		Short: "Sets the password of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.SetPassword(context.Background(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("password of %s changed\n", args[0])
			return nil
		},
	}
	permCmd = &cobra.Command{
		Use:   "perm [name] [permissions]",
		Short: "Merges permissions (JSON object) into the global permissions of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.SetPermissions(context.Background(), args[0], jsonObject(args[1])); err != nil {
				return err
			}
			fmt.Printf("permissions of %s changed\n", args[0])
			return nil
		},
	}
	baseCmd = &cobra.Command{
		Use:   "base [name] [overrides]",
		Short: "Merges per-base permission overrides into a user",
		Long:  `Merges per-base permission overrides into a user. The overrides are a JSON object of base names to permission objects, null removes the override of a base (e.g. {"logs":{"put":false},"tmp":null}).`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.SetBasePermissions(context.Background(), args[0], jsonObject(args[1])); err != nil {
				return err
			}
			fmt.Printf("base permissions of %s changed\n", args[0])
			return nil
		},
	}
)

// jsonObject passes the argument on unparsed, the server rejects invalid objects
func jsonObject(arg string) json.RawMessage {
	if arg == "" {
		return nil
	}
	return json.RawMessage(arg)
}
