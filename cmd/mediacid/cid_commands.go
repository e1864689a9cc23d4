package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/ciduri"
)

var skipConfig = map[string]string{"skipConfigLoad": "true"}

func newCIDCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "cid",
		Short:       "Inspect and rewrite content identifiers",
		Annotations: skipConfig,
	}
	cmd.AddCommand(
		cidTransform("strip <cid>", "Remove the embedded key", cidcodec.StripKey),
		cidTransform("extract <cid>", "Print the embedded key", cidcodec.ExtractKey),
		cidTransform("normalize <cid>", "Drop scheme and extension", func(s string) (string, error) {
			return ciduri.Normalize(s), nil
		}),
		cidTransform("uri <cid>", "Add the network scheme", func(s string) (string, error) {
			return ciduri.AddSchemePrefix(s), nil
		}),
		newCIDEmbedCommand(),
		newCIDInspectCommand(),
	)
	return cmd
}

func cidTransform(use, short string, fn func(string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := fn(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newCIDEmbedCommand() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "embed --key <key> <cid>",
		Short: "Splice a key into a key-stripped identifier",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return usagef("--key is required")
			}
			out, err := cidcodec.EmbedKey(key, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "base64url key")
	return cmd
}

type cidInfo struct {
	Input     string `json:"input"`
	Scheme    string `json:"scheme,omitempty"`
	Extension string `json:"extension,omitempty"`
	Encrypted bool   `json:"encrypted"`
	HasKey    bool   `json:"hasKey"`
	StoreKey  string `json:"storeKey"`
	ChunkSize int    `json:"chunkSize,omitempty"`
	Padding   uint32 `json:"padding,omitempty"`
	Original  string `json:"original,omitempty"`
	BlobHash  string `json:"blobHash,omitempty"`
}

func newCIDInspectCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <cid>",
		Short: "Decode an identifier without revealing its key",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := inspectCID(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, info)
			}
			rows := [][]string{
				{"Scheme", info.Scheme},
				{"Extension", info.Extension},
				{"Encrypted", yesNo(info.Encrypted)},
				{"Carries key", yesNo(info.HasKey)},
				{"Store key", info.StoreKey},
			}
			if info.Encrypted {
				rows = append(rows,
					[]string{"Chunk size", strconv.Itoa(info.ChunkSize)},
					[]string{"Padding", strconv.FormatUint(uint64(info.Padding), 10)},
					[]string{"Original", info.Original},
					[]string{"Blob hash", info.BlobHash},
				)
			}
			printTable(cmd, []string{"Field", "Value"}, rows, nil)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func inspectCID(input string) (cidInfo, error) {
	parts := ciduri.Split(input)
	info := cidInfo{Input: input, Scheme: parts.Scheme, Extension: parts.Ext}
	bare := ciduri.RemoveSchemePrefix(input)
	l, err := cidcodec.Decode(bare)
	if err != nil {
		ref, perr := cidcodec.Parse(bare)
		if perr != nil {
			return info, err
		}
		if _, plain := ref.(cidcodec.Plain); !plain {
			return info, err
		}
		info.StoreKey = ref.StoreKey()
		return info, nil
	}
	info.Encrypted = true
	info.HasKey = l.Key != nil
	info.ChunkSize = l.ChunkSize()
	info.Padding = l.Padding
	if l.Original.Defined() {
		info.Original = l.Original.String()
	}
	if info.HasKey {
		info.StoreKey, err = cidcodec.StoreKeyFor(bare, true)
		if err != nil {
			return info, err
		}
	} else {
		info.StoreKey = ciduri.Normalize(bare)
	}
	info.BlobHash = fmt.Sprintf("%x", l.BlobHash)
	return info, nil
}
