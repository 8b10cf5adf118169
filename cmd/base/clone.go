package base

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/netlevel/cmd/util"
	"github.com/ValentinKolb/netlevel/lib/rangeiter"
	"github.com/ValentinKolb/netlevel/rpc/client"
	"github.com/spf13/cobra"
)

var cloneCmd = &cobra.Command{
	Use:   "clone [src] [dst] [query]",
	Short: "Copies the rows of one base into another",
	Long: `Copies the rows of one base into another, possibly on a different server. Both sessions are given as host/port/user/pass/base, empty or missing parts are taken from the connection flags (e.g. "////backup" is the base backup on the same server). The optional query is a JSON list query like {"pre":"log/"}.
With --series the copy continues after the last key of the destination, so an append-only series can be synchronized repeatedly.`,
	Args: cobra.RangeArgs(2, 3),
	// the sessions are opened from the arguments
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return util.BindCommandFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		def := util.FlagTarget()
		src, err := util.ParseTarget(args[0], def)
		if err != nil {
			return err
		}
		src.Create = false
		dst, err := util.ParseTarget(args[1], def)
		if err != nil {
			return err
		}
		if src.Base == "" || dst.Base == "" {
			return fmt.Errorf("source and destination need a base")
		}
		if src.Endpoint == dst.Endpoint && src.Base == dst.Base {
			return fmt.Errorf("source and destination are the same base")
		}

		var q rangeiter.Query
		if len(args) == 3 {
			if q, err = rangeiter.ParseQuery([]byte(args[2])); err != nil {
				return err
			}
		}

		var opts client.CloneOptions
		opts.Series, _ = cmd.Flags().GetBool("series")
		opts.Overlap, _ = cmd.Flags().GetBool("overlap")
		opts.Puts, _ = cmd.Flags().GetInt("puts")
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			opts.Progress = func(key string) { fmt.Println(key) }
		}

		ctx := context.Background()
		from, err := util.ConnectTo(ctx, src)
		if err != nil {
			return err
		}
		defer from.Close()
		to, err := util.ConnectTo(ctx, dst)
		if err != nil {
			return err
		}
		defer to.Close()

		n, err := client.Clone(ctx, from, to, q, opts)
		fmt.Printf("(%d rows copied)\n", n)
		return err
	},
}

func init() {
	cloneCmd.Flags().Bool("series", false, util.WrapString("Continue after the last key of the destination"))
	cloneCmd.Flags().Bool("overlap", false, util.WrapString("With --series, copy the last key of the destination again"))
	cloneCmd.Flags().Int("puts", client.DefaultClonePuts, util.WrapString("Number of puts in flight"))
	cloneCmd.Flags().Bool("verbose", false, util.WrapString("Print every copied key"))
}
