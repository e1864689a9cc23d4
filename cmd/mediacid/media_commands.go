package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"xdao.co/mediacid/batch"
	"xdao.co/mediacid/internal/app"
	"xdao.co/mediacid/media"
	"xdao.co/mediacid/pipeline"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Read and write media metadata records",
	}
	cmd.AddCommand(newMediaShowCommand(ctx), newMediaCollectCommand(ctx), newMediaPublishCommand(ctx))
	return cmd
}

func newMediaShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <cid>",
		Short: "Print the record of an identifier",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := pipeline.ParseRef(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				entries, err := a.Merger.Load(c, ref)
				if err != nil {
					return err
				}
				if entries == nil {
					return fmt.Errorf("no record for %s", ref.StoreKey())
				}
				if asJSON {
					return writeJSON(cmd, entries)
				}
				printEntries(cmd, entries)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func printEntries(cmd *cobra.Command, entries []media.Entry) {
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		kind := string(e.Kind)
		if e.IsPrimary() {
			kind = "primary"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), kind, e.Type, e.Label, e.Language, e.CID})
	}
	printTable(cmd, []string{"#", "Kind", "Type", "Label", "Lang", "CID"}, rows, []columnAlignment{alignRight})
}

func newMediaCollectCommand(ctx *commandContext) *cobra.Command {
	var concurrency int
	var showKeys bool
	cmd := &cobra.Command{
		Use:   "collect <cid>...",
		Short: "Load several records concurrently as JSON, resolving missing keys from the keystore",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				collector := a.Collector
				if concurrency > 0 {
					opts := batch.Options{Concurrency: concurrency, Logger: a.Logger}
					if a.Config.Keys.Identity != "" {
						opts.Keys = keyResolver(a)
					}
					collector = batch.NewCollector(a.Merger, opts)
				}
				got, err := collector.Collect(c, args)
				if err != nil {
					return err
				}
				inputs := make([]string, 0, len(got))
				for in := range got {
					inputs = append(inputs, in)
				}
				sort.Strings(inputs)
				out := make([]collectedRecord, 0, len(inputs))
				for _, in := range inputs {
					r := got[in]
					rec := collectedRecord{Input: in, StoreKey: r.Ref.StoreKey(), Entries: r.Entries}
					if showKeys {
						rec.Key = r.Key
					}
					out = append(out, rec)
				}
				return writeJSON(cmd, out)
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel lookups (default 8)")
	cmd.Flags().BoolVar(&showKeys, "show-keys", false, "Include media keys in the output")
	return cmd
}

type collectedRecord struct {
	Input    string        `json:"input"`
	StoreKey string        `json:"storeKey"`
	Key      string        `json:"key,omitempty"`
	Entries  []media.Entry `json:"entries"`
}

// publishItem is one element of the publish input file.
type publishItem struct {
	CID     string        `json:"cid"`
	Key     string        `json:"key,omitempty"`
	Entries []media.Entry `json:"entries"`
}

func newMediaPublishCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <file.json|->",
		Short: "Write records from a JSON array of {cid, key, entries}",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var in []publishItem
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse records: %w", err)
			}
			items := make([]batch.Item, 0, len(in))
			for _, it := range in {
				items = append(items, batch.Item{CID: it.CID, Key: it.Key, Entries: it.Entries})
			}
			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				if err := a.Collector.Publish(c, items); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Published %d records\n", len(items))
				return nil
			})
		},
	}
	return cmd
}
