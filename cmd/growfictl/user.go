package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/growfi/growfi-server/internal/model"
	"github.com/growfi/growfi-server/internal/repository"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user roles",
	}
	cmd.AddCommand(newSetRoleCmd("promote EMAIL", "Grant the OPERATOR role", model.RoleOperator))
	cmd.AddCommand(newSetRoleCmd("demote EMAIL", "Revert a user to INVESTOR", model.RoleInvestor))
	return cmd
}

func newSetRoleCmd(use, short, role string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, _, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			email := strings.ToLower(strings.TrimSpace(args[0]))
			if err := repository.NewUserRepo(db).SetRole(cmd.Context(), email, role); err != nil {
				return fmt.Errorf("%s: %w", email, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s; existing access tokens keep their old role until they expire\n", email, role)
			return nil
		},
	}
}
