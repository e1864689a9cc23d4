package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/ciduri"
	"xdao.co/mediacid/contentnet"
	"xdao.co/mediacid/internal/app"
	"xdao.co/mediacid/storage/bundle"
)

func newBundleCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Export and import content blocks as a TAR archive",
	}
	cmd.AddCommand(newBundleExportCommand(ctx), newBundleImportCommand(ctx))
	return cmd
}

// bundleLabel is the label stored for id: its key-stripped, undecorated form.
func bundleLabel(id string) (string, error) {
	bare := ciduri.RemoveSchemePrefix(id)
	if l, err := cidcodec.Decode(bare); err == nil && l.Key != nil {
		stripped, err := cidcodec.StripKey(bare)
		if err != nil {
			return "", err
		}
		return ciduri.Normalize(stripped), nil
	}
	return ciduri.Normalize(bare), nil
}

func newBundleExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <cid>...",
		Short: "Write the blocks behind identifiers to a bundle (keys are never included)",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			labels := make(map[string]cid.Cid, len(args))
			for _, id := range args {
				block, err := contentnet.BlockCID(id)
				if err != nil {
					return err
				}
				label, err := bundleLabel(id)
				if err != nil {
					return err
				}
				labels[label] = block
			}
			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				var w io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return bundle.Export(c, w, a.Content.CAS(), nil, bundle.ExportOptions{IncludeIndex: true, Labels: labels})
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Bundle file (default stdout)")
	return cmd
}

func newBundleImportCommand(ctx *commandContext) *cobra.Command {
	var ignoreUnknown bool
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Store every block of a bundle",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				res, err := bundle.Import(c, r, a.Content.CAS(), bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
				if err != nil {
					return err
				}
				names := make([]string, 0, len(res.Labels))
				for name := range res.Labels {
					names = append(names, name)
				}
				sort.Strings(names)
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name, res.Labels[name].String()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d blocks\n", len(res.Blocks))
				if len(rows) > 0 {
					printTable(cmd, []string{"Identifier", "Block"}, rows, nil)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unexpected entries")
	return cmd
}
