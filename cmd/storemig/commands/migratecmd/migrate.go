// SPDX-License-Identifier: Apache-2.0

package migratecmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/automa-saga/logx"
	"github.com/hashgraph/solo-storemig/cmd/storemig/commands/common"
	"github.com/hashgraph/solo-storemig/internal/config"
	"github.com/hashgraph/solo-storemig/internal/controller"
	"github.com/hashgraph/solo-storemig/internal/migration"
	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
)

var (
	flagStore       string
	flagTarget      string
	flagStoreType   string
	flagTempDir     string
	flagLockTimeout time.Duration
	flagYes         bool

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Migrate a store to the final schema version",
		Long: "Migrate a store file step by step through the versions of the catalog until it reaches the final " +
			"version. The original store is only replaced once every step has succeeded.",
		RunE: runMigrate,
	}
)

func init() {
	common.FlagStore.SetVar(migrateCmd, &flagStore, true)
	common.FlagTarget.SetVar(migrateCmd, &flagTarget, false)
	common.FlagStoreType.SetVar(migrateCmd, &flagStoreType, false)
	common.FlagTempDir.SetVar(migrateCmd, &flagTempDir, false)
	common.FlagLockTimeout.SetVar(migrateCmd, &flagLockTimeout, false)
	common.FlagYes.SetVar(migrateCmd, &flagYes, false)
}

func GetCmd() *cobra.Command {
	return migrateCmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	config.OverrideCatalogConfig(config.CatalogConfig{Final: flagTarget})
	config.OverrideMigrationConfig(config.MigrationConfig{
		TempDir:     flagTempDir,
		LockTimeout: flagLockTimeout,
		StoreType:   flagStoreType,
		AssumeYes:   flagYes,
	})
	if err := config.Get().Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := common.LoadCatalog()
	if err != nil {
		return err
	}

	live := common.IsTerminal(os.Stdout)
	printer := common.NewProgressPrinter(cmd.OutOrStdout(), live)
	ctl, err := common.NewController(flagStore, catalog, controller.WithObserver(printer))
	if err != nil {
		return err
	}
	defer ctl.Close()

	// leftovers of an interrupted swap have to be resolved before the store version can be read
	if _, err := ctl.Recover(ctx); err != nil {
		return err
	}

	proceed, err := confirm(ctx, cmd, ctl, catalog, live)
	if err != nil || !proceed {
		return err
	}

	res, err := ctl.Migrate(ctx)
	if err != nil {
		return err
	}

	logx.As().Info().
		Str("store", res.Location).
		Str("from", string(res.From)).
		Str("to", string(res.To)).
		Int("steps", res.Steps).
		Msg("Store migrated")
	if res.Steps == 0 {
		cmd.Printf("Store %s is already at version %s\n", res.Location, res.To)
		return nil
	}
	cmd.Printf("Migrated %s from %s to %s in %d step(s): %s\n", res.Location, res.From, res.To, res.Steps, formatPath(res.Path))
	return nil
}

// confirm shows the planned path and asks for confirmation unless it was given up front.
func confirm(ctx context.Context, cmd *cobra.Command, ctl *controller.Controller, catalog *migration.Catalog,
	live bool) (bool, error) {
	current, err := ctl.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	if current == ctl.Final() {
		return true, nil
	}

	path, err := migration.NewPathResolver(catalog).Resolve(current, ctl.Final())
	if err != nil {
		return false, err
	}

	if config.Get().Migration.AssumeYes {
		return true, nil
	}
	if !live {
		return false, errorx.IllegalArgument.New("confirmation is required when not running on a terminal").
			WithProperty(errorx.PropertyPayload(), "--"+common.FlagYes.Name)
	}

	ok, err := common.Confirm(
		fmt.Sprintf("Migrate %s from %s to %s?", ctl.Location(), current, ctl.Final()),
		fmt.Sprintf("%d step(s): %s", path.Steps(), formatPath(path)),
	)
	if err != nil {
		return false, err
	}
	if !ok {
		cmd.Println("Migration cancelled, the store was not modified")
	}
	return ok, nil
}

func formatPath(p migration.Path) string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = string(v)
	}
	return strings.Join(parts, " -> ")
}
