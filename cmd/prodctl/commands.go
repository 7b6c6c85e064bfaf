package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/auth"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store/postgres"
	"github.com/prodflow/prodflow/pkg/tenant"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.AutoMigrate(); err != nil {
				return err
			}
			opts.logger.Info("schema migrated", zap.String("database", opts.cfg.Database.Database))
			return nil
		},
	}
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		company string
		roles   []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret must be set")
			}
			actor := tenant.Actor{ID: subject}
			if company != "" {
				id, err := uuid.Parse(company)
				if err != nil {
					return fmt.Errorf("invalid --company: %w", err)
				}
				actor.CompanyID = id
			}
			for _, r := range roles {
				role := tenant.Role(r)
				switch role {
				case tenant.RoleSystemAdmin, tenant.RoleCompanyAdmin, tenant.RoleUser:
				default:
					return fmt.Errorf("unknown role %q", r)
				}
				actor.Roles = append(actor.Roles, role)
			}
			if actor.CompanyID == uuid.Nil && !actor.Has(tenant.RoleSystemAdmin) {
				return errors.New("--company is required unless --role system_admin is given")
			}

			tokens := auth.NewTokenManager([]byte(opts.cfg.Auth.JWTSecret), opts.cfg.Auth.TokenTTL, opts.cfg.Auth.Issuer)
			tok, err := tokens.Generate(actor)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "actor id")
	cmd.Flags().StringVar(&company, "company", "", "company id")
	cmd.Flags().StringSliceVar(&roles, "role", []string{string(tenant.RoleUser)}, "roles (system_admin, company_admin, user)")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func kindNames() string {
	kinds := softdelete.DefaultRegistry().Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func newDepsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <kind> <id>",
		Short: "Report whether a row can be deleted",
		Long:  "Runs the dependency check for a row without deleting it.\nKinds: " + kindNames(),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid id: %w", err)
			}
			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			coord := softdelete.NewCoordinator(db, nil, opts.logger)
			err = coord.CheckDependencies(cmd.Context(), tenant.System("prodctl"), softdelete.Kind(args[0]), id)
			switch {
			case err == nil:
				fmt.Fprintln(cmd.OutOrStdout(), "no live dependents")
				return nil
			case apperr.Is(err, apperr.KindConflict):
				fmt.Fprintln(cmd.OutOrStdout(), apperr.Message(err))
				return nil
			default:
				return err
			}
		},
	}
}

func newOutboxCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the production event outbox",
	}
	var limit int
	pending := &cobra.Command{
		Use:   "pending",
		Short: "List events not yet published",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			events, err := postgres.NewOutboxRepository(db.DB()).ListPending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		},
	}
	pending.Flags().IntVar(&limit, "limit", 50, "maximum events to list")
	cmd.AddCommand(pending)
	return cmd
}
