package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xdao.co/mediacid/config"
	"xdao.co/mediacid/storage/casregistry"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a sample configuration",
		Args:        cobra.MaximumNArgs(1),
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else if ctx.configFlag != nil && *ctx.configFlag != "" {
				path = *ctx.configFlag
			} else {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}
			if err := config.WriteSample(path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			transcoder := cfg.Transcoder.BaseURL
			if transcoder == "" {
				transcoder = "(none)"
			}
			rows := [][]string{
				{"Config", ctx.configPath},
				{"Transcoder", transcoder},
				{"Store", cfg.Store.Backend + " " + cfg.Store.Path},
				{"CAS policy", cfg.CAS.WritePolicy},
				{"Keys", cfg.Keys.Dir},
				{"Log", cfg.Log.Level + "/" + cfg.Log.Format},
			}
			printTable(cmd, []string{"Setting", "Value"}, rows, nil)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

func newBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "backends",
		Short:       "List CAS backends linked into this binary",
		Args:        exactArgs(0),
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := [][]string{}
			for _, b := range casregistry.List(casregistry.UsageCLI) {
				rows = append(rows, []string{b.Name, b.Description})
			}
			printTable(cmd, []string{"Backend", "Description"}, rows, nil)
			return nil
		},
	}
}
