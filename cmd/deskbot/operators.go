package main

import (
	"context"
	"fmt"

	"deskbot/internal/config"
	"deskbot/internal/domain"
	"deskbot/internal/store"

	"github.com/spf13/cobra"
)

func operatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage dashboard operators",
	}

	var role string
	var name string
	add := &cobra.Command{
		Use:   "add [login]",
		Short: "Add an operator account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			switch r {
			case domain.RoleAdmin, domain.RoleOperator, domain.RoleViewer:
			default:
				return fmt.Errorf("unknown role %q (admin, operator, viewer)", role)
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			if existing, err := st.GetOperatorByLogin(ctx, args[0]); err != nil {
				return err
			} else if existing != nil {
				return fmt.Errorf("operator %q already exists", args[0])
			}

			id, err := st.CreateOperator(ctx, domain.Operator{Login: args[0], Name: name, Role: r})
			if err != nil {
				return err
			}
			logger.Info("operator created", "id", id, "login", args[0], "role", role)
			return nil
		},
	}
	add.Flags().StringVar(&role, "role", "operator", "role: admin, operator, or viewer")
	add.Flags().StringVar(&name, "name", "", "display name")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "show [login]",
		Short: "Show an operator account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			op, err := st.GetOperatorByLogin(context.Background(), args[0])
			if err != nil {
				return err
			}
			if op == nil {
				return fmt.Errorf("operator %q not found", args[0])
			}
			fmt.Printf("%d\t%s\t%s\t%s\n", op.ID, op.Login, op.Name, op.Role)
			return nil
		},
	})

	return cmd
}

func openStore() (*store.SQLiteStore, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store.NewSQLiteStore(config.ExpandPath(cfg.Storage.DBPath), logger)
}
