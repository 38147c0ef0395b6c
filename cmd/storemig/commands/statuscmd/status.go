// SPDX-License-Identifier: Apache-2.0

package statuscmd

import (
	"context"
	"time"

	"github.com/hashgraph/solo-storemig/cmd/storemig/commands/common"
	"github.com/hashgraph/solo-storemig/internal/config"
	"github.com/hashgraph/solo-storemig/internal/migration"
	"github.com/hashgraph/solo-storemig/pkg/store"
	"github.com/spf13/cobra"
)

// Status describes a store relative to the catalog.
type Status struct {
	Store           string    `yaml:"store" json:"store"`
	Format          string    `yaml:"format" json:"format"`
	CreatedAt       time.Time `yaml:"createdAt" json:"createdAt"`
	Fingerprint     string    `yaml:"fingerprint" json:"fingerprint"`
	Version         string    `yaml:"version" json:"version"`
	Final           string    `yaml:"final" json:"final"`
	MigrationNeeded bool      `yaml:"migrationNeeded" json:"migrationNeeded"`
	Path            []string  `yaml:"path,omitempty" json:"path,omitempty"`
}

var (
	flagStore  string
	flagTarget string
	flagOutput string

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the schema version of a store",
		Long:  "Identify the schema version of a store and show the migration path to the final version",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.OverrideCatalogConfig(config.CatalogConfig{Final: flagTarget})

			catalog, err := common.LoadCatalog()
			if err != nil {
				return err
			}

			st, err := Describe(cmd.Context(), flagStore, catalog)
			if err != nil {
				return err
			}

			return common.PrintAs(cmd, st, flagOutput)
		},
	}
)

func init() {
	common.FlagStore.SetVar(statusCmd, &flagStore, true)
	common.FlagTarget.SetVar(statusCmd, &flagTarget, false)
	statusCmd.Flags().StringVarP(&flagOutput, "output", "o", "yaml", "Output format: yaml|json")
}

func GetCmd() *cobra.Command {
	return statusCmd
}

// Describe reads the metadata of the store at storePath and resolves its path to the configured final version.
func Describe(ctx context.Context, storePath string, catalog *migration.Catalog) (*Status, error) {
	ctl, err := common.NewController(storePath, catalog)
	if err != nil {
		return nil, err
	}
	defer ctl.Close()

	current, err := ctl.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Store:           ctl.Location(),
		Version:         string(current),
		Final:           string(ctl.Final()),
		MigrationNeeded: current != ctl.Final(),
	}

	typ, err := store.ParseType(config.Get().Migration.StoreType)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(ctx, ctl.Location(), typ, true)
	if err != nil {
		return nil, err
	}
	meta := s.Meta()
	_ = s.Close()
	st.Format = meta.Format
	st.CreatedAt = meta.CreatedAt
	st.Fingerprint = meta.Fingerprint

	if st.MigrationNeeded {
		path, err := migration.NewPathResolver(catalog).Resolve(current, ctl.Final())
		if err != nil {
			return nil, err
		}
		for _, v := range path {
			st.Path = append(st.Path, string(v))
		}
	}

	return st, nil
}
