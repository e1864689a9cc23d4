package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"xdao.co/mediacid/batch"
	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/internal/app"
	"xdao.co/mediacid/keys"
	"xdao.co/mediacid/pipeline"
)

func keyResolver(a *app.App) batch.KeyResolver {
	return keys.Resolver{Store: a.Keys, Identity: a.Config.Keys.Identity}
}

func newTranscodeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcode",
		Short: "Submit and follow transcode jobs",
	}
	cmd.AddCommand(newTranscodeSubmitCommand(ctx), newTranscodeStatusCommand(ctx), newTranscodeWatchCommand(ctx))
	return cmd
}

func newTranscodeSubmitCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "submit <cid>",
		Short: "Submit a job unless one is already pending",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := pipeline.ParseRef(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				svc, err := a.RequirePipeline()
				if err != nil {
					return err
				}
				job, created, err := svc.Submit(c, ref)
				if err != nil {
					return err
				}
				state := "submitted"
				if !created {
					state = "already pending"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: task %s (%s)\n", ref.StoreKey(), job.TaskID, state)
				if !watch {
					return nil
				}
				return watchJob(c, cmd, a, ref)
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll until the result is merged")
	return cmd
}

func newTranscodeStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <cid>",
		Short: "Show the pending job and record state",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := pipeline.ParseRef(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				svc, err := a.RequirePipeline()
				if err != nil {
					return err
				}
				job, pending, err := svc.Tracker().Pending(c, ref.StoreKey())
				if err != nil {
					return err
				}
				hasMedia, err := svc.Merger().HasMedia(c, ref)
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Store key", ref.StoreKey()},
					{"Pending", yesNo(pending)},
					{"Has media", yesNo(hasMedia)},
				}
				if pending {
					rows = append(rows,
						[]string{"Task", job.TaskID},
						[]string{"Encrypted", yesNo(job.Encrypted)},
					)
					if !job.SubmittedAt.IsZero() {
						rows = append(rows, []string{"Submitted", job.SubmittedAt.Format(time.RFC3339)})
					}
				}
				printTable(cmd, []string{"Field", "Value"}, rows, nil)
				return nil
			})
		},
	}
	return cmd
}

func newTranscodeWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <cid>",
		Short: "Poll a pending job until its result is merged",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := pipeline.ParseRef(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				if _, err := a.RequirePipeline(); err != nil {
					return err
				}
				return watchJob(c, cmd, a, ref)
			})
		},
	}
	return cmd
}

// watchJob runs a poll loop for ref and reports progress changes until it ends.
func watchJob(ctx context.Context, cmd *cobra.Command, a *app.App, ref cidcodec.Ref) error {
	h, _ := a.Poller.Start(ctx, ref)
	out := cmd.OutOrStdout()
	ticker := time.NewTicker(a.Config.Transcoder.PollInterval())
	defer ticker.Stop()
	lastShown := -1
	for {
		select {
		case <-h.Done():
			res, err := h.Result()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %s\n", h.Key(), res.Outcome)
			if len(res.Entries) > 0 {
				printEntries(cmd, res.Entries)
			}
			return nil
		case <-ticker.C:
			if p, ok := a.Poller.Progress(h.Key()); ok && p != lastShown {
				lastShown = p
				fmt.Fprintf(out, "%s: %d%%\n", h.Key(), p)
			}
		}
	}
}
