package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/ciduri"
	"xdao.co/mediacid/internal/app"
)

func newPutCommand(ctx *commandContext) *cobra.Command {
	var encrypt, saveKey, uri bool
	var identity string
	cmd := &cobra.Command{
		Use:   "put <file|->",
		Short: "Store a file in the content network and print its identifier",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				id, err := a.Content.Upload(c, data, encrypt)
				if err != nil {
					return err
				}
				if encrypt && saveKey {
					if err := saveUploadKey(ctx, a, identity, id); err != nil {
						return err
					}
				}
				if uri {
					id = ciduri.AddSchemePrefix(id)
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Encrypt under a fresh key embedded in the identifier")
	cmd.Flags().BoolVar(&saveKey, "save-key", false, "Also save the key in the keystore (requires an identity)")
	cmd.Flags().StringVar(&identity, "identity", "", "Identity for --save-key")
	cmd.Flags().BoolVar(&uri, "uri", false, "Print with the network scheme")
	return cmd
}

func saveUploadKey(ctx *commandContext, a *app.App, identity, id string) error {
	name, err := ctx.identity(identity)
	if err != nil {
		return err
	}
	ref, err := cidcodec.Parse(id)
	if err != nil {
		return err
	}
	enc, ok := ref.(cidcodec.Encrypted)
	if !ok {
		return fmt.Errorf("upload returned a plain identifier")
	}
	return a.Keys.SaveMediaKey(name, enc.StoreKey(), enc.Key)
}

func newGetCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <cid>",
		Short: "Fetch and, for keyed identifiers, decrypt content",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				data, err := a.Content.Download(c, args[0])
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				return os.WriteFile(output, data, 0o600)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}
