// SPDX-License-Identifier: Apache-2.0

package recovercmd

import (
	"github.com/hashgraph/solo-storemig/cmd/storemig/commands/common"
	"github.com/spf13/cobra"
)

var (
	flagStore string

	recoverCmd = &cobra.Command{
		Use:   "recover",
		Short: "Clean up after an interrupted migration",
		Long: "Restore the original store from its backup or remove an unfinished migrated copy left behind by an " +
			"interrupted migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := common.LoadCatalog()
			if err != nil {
				return err
			}

			ctl, err := common.NewController(flagStore, catalog)
			if err != nil {
				return err
			}
			defer ctl.Close()

			action, err := ctl.Recover(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("Recovery of %s: %s\n", ctl.Location(), action)
			return nil
		},
	}
)

func init() {
	common.FlagStore.SetVar(recoverCmd, &flagStore, true)
}

func GetCmd() *cobra.Command {
	return recoverCmd
}
