// SPDX-License-Identifier: Apache-2.0

package catalogcmd

import (
	"github.com/hashgraph/solo-storemig/cmd/storemig/commands/common"
	"github.com/hashgraph/solo-storemig/internal/migration"
	"github.com/spf13/cobra"
)

type VersionInfo struct {
	Name        string `yaml:"name" json:"name"`
	Fingerprint string `yaml:"fingerprint" json:"fingerprint"`
	Final       bool   `yaml:"final,omitempty" json:"final,omitempty"`
}

type EdgeInfo struct {
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
	Explicit bool   `yaml:"explicit" json:"explicit"`
}

// Summary lists the versions of a catalog and the edges of its version graph.
type Summary struct {
	Versions []VersionInfo `yaml:"versions" json:"versions"`
	Edges    []EdgeInfo    `yaml:"edges" json:"edges"`
	Linear   bool          `yaml:"linear" json:"linear"`
}

var (
	flagOutput string

	catalogCmd = &cobra.Command{
		Use:   "catalog",
		Short: "List the versions of the catalog",
		Long:  "List the schema versions of the catalog, their fingerprints and the mappings between them",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := common.LoadCatalog()
			if err != nil {
				return err
			}

			summary, err := Summarize(catalog)
			if err != nil {
				return err
			}

			return common.PrintAs(cmd, summary, flagOutput)
		},
	}
)

func init() {
	catalogCmd.Flags().StringVarP(&flagOutput, "output", "o", "yaml", "Output format: yaml|json")
}

func GetCmd() *cobra.Command {
	return catalogCmd
}

func Summarize(catalog *migration.Catalog) (*Summary, error) {
	summary := &Summary{}
	for _, v := range catalog.Versions() {
		d, err := catalog.Descriptor(v)
		if err != nil {
			return nil, err
		}
		fp, err := d.Fingerprint()
		if err != nil {
			return nil, err
		}
		summary.Versions = append(summary.Versions, VersionInfo{
			Name:        string(v),
			Fingerprint: fp,
			Final:       v == catalog.Final(),
		})
	}

	resolver := migration.NewPathResolver(catalog)
	for _, e := range resolver.Edges() {
		summary.Edges = append(summary.Edges, EdgeInfo{From: string(e.From), To: string(e.To), Explicit: e.Explicit})
	}
	summary.Linear = resolver.IsLinear()

	return summary, nil
}
