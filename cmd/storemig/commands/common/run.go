// SPDX-License-Identifier: Apache-2.0

package common

import (
	"github.com/automa-saga/logx"
	"github.com/hashgraph/solo-storemig/internal/config"
	"github.com/hashgraph/solo-storemig/internal/controller"
	"github.com/hashgraph/solo-storemig/internal/migration"
	"github.com/hashgraph/solo-storemig/pkg/sanity"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/hashgraph/solo-storemig/pkg/store"
	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
)

// DefaultRunE is a default RunE function that shows help message.
// We always add a run function to commands to ensure cobra marks it as Runnable.
func DefaultRunE(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

// LoadCatalog loads the catalog from the configured catalog directory.
func LoadCatalog() (*migration.Catalog, error) {
	dir := config.Get().Catalog.Dir
	if dir == "" {
		return nil, errorx.IllegalArgument.New("catalog directory is not configured").
			WithProperty(errorx.PropertyPayload(), "--"+FlagCatalog.Name)
	}

	catalog, err := migration.LoadCatalog(dir)
	if err != nil {
		return nil, err
	}

	logx.As().Debug().
		Str("catalog", dir).
		Int("versions", len(catalog.Versions())).
		Str("final", string(catalog.Final())).
		Msg("Loaded catalog")
	return catalog, nil
}

// NewController creates the controller of storePath using the loaded configuration.
func NewController(storePath string, catalog *migration.Catalog, opts ...controller.Option) (*controller.Controller, error) {
	if storePath == "" {
		return nil, errorx.IllegalArgument.New("store path is required").
			WithProperty(errorx.PropertyPayload(), "--"+FlagStore.Name)
	}

	location, err := sanity.SanitizePath(storePath)
	if err != nil {
		return nil, err
	}

	cfg := config.Get()
	typ, err := store.ParseType(cfg.Migration.StoreType)
	if err != nil {
		return nil, err
	}

	base := []controller.Option{
		controller.WithLogger(logx.As()),
		controller.WithTempDir(cfg.Migration.TempDir),
		controller.WithLockTimeout(cfg.Migration.LockTimeout),
		controller.WithStoreType(typ),
	}

	return controller.New(location, catalog, schema.Version(cfg.Catalog.Final), append(base, opts...)...)
}
