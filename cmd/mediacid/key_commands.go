package main

import (
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/ciduri"
	"xdao.co/mediacid/keys"
)

func newKeyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Local keystore for root seeds and media keys",
	}
	cmd.AddCommand(newKeyInitCommand(ctx), newKeyDeriveCommand(ctx), newKeyLookupCommand(ctx), newKeyListCommand(ctx))
	return cmd
}

func (c *commandContext) keyStore() (*keys.KeyStore, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return keys.CreateKeyStore(cfg.Keys.Dir)
}

// identity picks --identity, falling back to keys.identity.
func (c *commandContext) identity(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	if cfg.Keys.Identity == "" {
		return "", usagef("--identity is required (or set keys.identity)")
	}
	return cfg.Keys.Identity, nil
}

func newKeyInitCommand(ctx *commandContext) *cobra.Command {
	var identity, seedHex string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the root seed for an identity",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ctx.identity(identity)
			if err != nil {
				return err
			}
			if err := keys.CheckIdentity(id); err != nil {
				return usagef("invalid --identity: %v", err)
			}
			var seed []byte
			if seedHex != "" {
				if seed, err = keys.ParseSeedHex(seedHex); err != nil {
					return usagef("invalid --seed-hex: %v", err)
				}
			} else {
				seed = make([]byte, keys.SeedSize)
				if _, err := rand.Read(seed); err != nil {
					return fmt.Errorf("rand: %w", err)
				}
			}
			ks, err := ctx.keyStore()
			if err != nil {
				return err
			}
			path, err := ks.InitializeRootSeed(id, seed, force)
			if err != nil {
				return fmt.Errorf("write seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created root seed for %s\nStored at: %s\n", id, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "Identity name")
	cmd.Flags().StringVar(&seedHex, "seed-hex", "", "Optional seed as 64 hex chars (for reproducible setups)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing seed")
	return cmd
}

func newKeyDeriveCommand(ctx *commandContext) *cobra.Command {
	var identity string
	cmd := &cobra.Command{
		Use:   "derive <stripped-cid>",
		Short: "Derive and save the media key for a key-stripped identifier, printing the keyed form",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ctx.identity(identity)
			if err != nil {
				return err
			}
			ks, err := ctx.keyStore()
			if err != nil {
				return err
			}
			stripped := ciduri.RemoveSchemePrefix(args[0])
			l, err := cidcodec.Decode(stripped)
			if err != nil {
				return err
			}
			if l.Key != nil {
				return usagef("identifier already carries a key; strip it first")
			}
			k, err := ks.NewMediaKey(id, ciduri.Normalize(stripped))
			if err != nil {
				return err
			}
			keyed, err := cidcodec.EmbedRawKey(k, stripped)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keyed)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "Identity name")
	return cmd
}

func newKeyLookupCommand(ctx *commandContext) *cobra.Command {
	var identity string
	cmd := &cobra.Command{
		Use:   "lookup <stripped-cid>",
		Short: "Print the keyed form of an identifier using a saved media key",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ctx.identity(identity)
			if err != nil {
				return err
			}
			ks, err := ctx.keyStore()
			if err != nil {
				return err
			}
			stripped := ciduri.RemoveSchemePrefix(args[0])
			k, ok, err := ks.MediaKey(id, ciduri.Normalize(stripped))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no saved key for %s", ciduri.Normalize(stripped))
			}
			keyed, err := cidcodec.EmbedRawKey(k, stripped)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keyed)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "Identity name")
	return cmd
}

func newKeyListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List identities in the keystore",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := ctx.keyStore()
			if err != nil {
				return err
			}
			ids, err := ks.ListIdentities()
			if err != nil {
				return fmt.Errorf("list identities: %w", err)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
