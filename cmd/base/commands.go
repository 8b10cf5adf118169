package base

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/netlevel/cmd/util"
	"github.com/ValentinKolb/netlevel/lib/rangeiter"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Gets the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, loaded, err := rpcClient.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !loaded {
				fmt.Println("key not found")
				return nil
			}
			fmt.Println(string(value))
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value of a key",
		Long:  "Sets the value of a key. A value that is not valid JSON is stored as a JSON string.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Put(context.Background(), args[0], jsonValue(args[1])); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the keys of the current store in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := rangeQuery(cmd)
			if err != nil {
				return err
			}
			if keys, _ := cmd.Flags().GetBool("keys"); keys {
				off := false
				q.Values = &off
			}
			q.Del, _ = cmd.Flags().GetBool("del")

			ctx := context.Background()
			count := 0
			show := func(row rangeiter.Row) error {
				count++
				if len(row.Value) == 0 {
					fmt.Println(row.Key)
				} else {
					fmt.Printf("%s\t%s\n", row.Key, row.Value)
				}
				return nil
			}

			cur, err := rpcClient.List(ctx, q, show)
			if err != nil {
				return err
			}
			if all, _ := cmd.Flags().GetBool("all"); all {
				for {
					before := count
					more, err := rpcClient.More(ctx, cur, show)
					if err != nil {
						return err
					}
					if !more || count == before {
						break
					}
				}
			}
			fmt.Printf("(%d rows)\n", count)
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Deletes the keys of the current store, limited by the range flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := rangeQuery(cmd)
			if err != nil {
				return err
			}
			if err := rpcClient.Clear(context.Background(), q); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
	statCmd = &cobra.Command{
		Use:   "stat [name]",
		Short: "Prints the server stat, or the stat of an open base",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if len(args) == 0 {
				raw, err := rpcClient.Stat(ctx)
				if err != nil {
					return err
				}
				return printJSON(raw)
			}
			st, ok, err := rpcClient.StatBase(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("base %s is not open\n", args[0])
				return nil
			}
			return printJSON(st)
		},
	}
	dropCmd = &cobra.Command{
		Use:   "drop [name]",
		Short: "Deletes a base that no session uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Drop(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Println("dropped successfully")
			return nil
		},
	}
)

// setupRangeFlags adds the key bounds shared by list and clear
func setupRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("gt", "", util.WrapString("Only keys greater than this key"))
	cmd.Flags().String("gte", "", util.WrapString("Only keys greater than or equal to this key"))
	cmd.Flags().String("lt", "", util.WrapString("Only keys less than this key"))
	cmd.Flags().String("lte", "", util.WrapString("Only keys less than or equal to this key"))
	cmd.Flags().String("pre", "", util.WrapString("Only keys with this prefix"))
}

// rangeQuery builds a query from the range flags that were set
func rangeQuery(cmd *cobra.Command) (rangeiter.Query, error) {
	var q rangeiter.Query
	bound := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		return &v
	}
	q.GT, q.GTE, q.LT, q.LTE, q.Pre = bound("gt"), bound("gte"), bound("lt"), bound("lte"), bound("pre")

	if cmd.Flags().Lookup("limit") == nil {
		return q, nil
	}
	var err error
	if q.Limit, err = cmd.Flags().GetInt64("limit"); err != nil {
		return q, err
	}
	if q.Skip, err = cmd.Flags().GetInt64("skip"); err != nil {
		return q, err
	}
	q.Reverse, err = cmd.Flags().GetBool("reverse")
	return q, err
}

// jsonValue returns arg if it is a JSON document, otherwise arg as a JSON string
func jsonValue(arg string) json.RawMessage {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	raw, _ := json.Marshal(arg)
	return raw
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
