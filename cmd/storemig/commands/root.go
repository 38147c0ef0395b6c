// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"

	"github.com/automa-saga/logx"
	"github.com/hashgraph/solo-storemig/cmd/storemig/commands/catalogcmd"
	"github.com/hashgraph/solo-storemig/cmd/storemig/commands/common"
	"github.com/hashgraph/solo-storemig/cmd/storemig/commands/migratecmd"
	"github.com/hashgraph/solo-storemig/cmd/storemig/commands/recovercmd"
	"github.com/hashgraph/solo-storemig/cmd/storemig/commands/statuscmd"
	"github.com/hashgraph/solo-storemig/cmd/storemig/commands/versioncmd"
	"github.com/hashgraph/solo-storemig/internal/config"
	"github.com/hashgraph/solo-storemig/internal/doctor"
	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
)

// examples:
// ./storemig status --store ./data/app.store --catalog ./catalog
// ./storemig migrate --store ./data/app.store --catalog ./catalog --yes
// ./storemig migrate -c ./storemig.yaml --store ./data/app.store --target v3
// ./storemig recover --store ./data/app.store --catalog ./catalog

// rootCmd represents the base command when called without any subcommands
var (
	// Used for flags.
	flagConfig       string
	flagCatalog      string
	flagVersion      bool
	flagOutputFormat string

	rootCmd = &cobra.Command{
		Use:           "storemig",
		Short:         "Migrate self-describing store files between schema versions",
		Long:          "Store Migrator - Migrate self-describing store files step by step to the latest schema version",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagVersion {
				versioncmd.PrintVersion(cmd, flagOutputFormat)
				return nil
			}

			return common.DefaultRunE(cmd, args)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path")
	common.FlagCatalog.SetVarP(rootCmd, &flagCatalog, false)

	// support '--version', '-v' to show version information
	rootCmd.PersistentFlags().BoolVarP(&flagVersion, "version", "v", false, "Show version")
	rootCmd.PersistentFlags().StringVarP(&flagOutputFormat, "output", "o", "yaml", "Output format (text|yaml|json)")

	// disable command sorting to keep the order of commands as added
	cobra.EnableCommandSorting = false

	// add subcommands
	rootCmd.AddCommand(migratecmd.GetCmd())
	rootCmd.AddCommand(statuscmd.GetCmd())
	rootCmd.AddCommand(recovercmd.GetCmd())
	rootCmd.AddCommand(catalogcmd.GetCmd())
	rootCmd.AddCommand(versioncmd.GetCmd())
}

// Execute executes the root command.
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errorx.IllegalArgument.New("context is required")
	}

	cobra.OnInitialize(func() {
		initConfig(ctx)
	})

	// execute the root command
	_, err := rootCmd.ExecuteContextC(ctx)
	if err != nil {
		return errorx.Decorate(err, "failed to execute command")
	}

	return nil
}

func initConfig(ctx context.Context) {
	var err error
	err = config.Initialize(flagConfig)
	if err != nil {
		doctor.CheckErr(ctx, err)
	}
	config.OverrideCatalogConfig(config.CatalogConfig{Dir: flagCatalog})

	logConfig := config.Get().Log
	err = logx.Initialize(logConfig)
	if err != nil {
		doctor.CheckErr(ctx, err)
	}
}
