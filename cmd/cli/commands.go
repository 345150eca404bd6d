package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourorg/saasforge/internal/repository"
	"github.com/yourorg/saasforge/internal/security/audit"
	"github.com/yourorg/saasforge/internal/service"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the tables of the main database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if err := repository.Migrate(cmd.Context(), a.pool.Gorm()); err != nil {
				return err
			}
			cmd.Println("Main database migrated")
			return nil
		},
	}
}

func newTenantCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	var in service.CreateTenantInput
	var features []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant. Usage: saasctl tenant create --name [name] --subdomain [host]",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if len(features) > 0 {
				in.Features = map[string]bool{}
				for _, f := range features {
					in.Features[strings.TrimSpace(f)] = true
				}
			}
			t, err := a.tenants.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(t, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "tenant name")
	create.Flags().StringVar(&in.Subdomain, "subdomain", "", "full subdomain host, e.g. acme.example.com")
	create.Flags().StringVar(&in.CustomDomain, "custom-domain", "", "custom domain host")
	create.Flags().StringVar(&in.AdminEmail, "admin-email", "", "email of the tenant admin")
	create.Flags().StringVar(&in.AdminPassword, "admin-password", "", "password of the tenant admin")
	create.Flags().StringSliceVar(&features, "feature", nil, "feature to enable, repeatable")
	_ = create.MarkFlagRequired("name")

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a tenant and enqueue the removal of its database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if err := a.tenants.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("Tenant %s deleted\n", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			tenants, err := a.tenants.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSUBDOMAIN\tACTIVE\tFEATURES")
			for _, t := range tenants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
					t.ID, t.Name, t.Subdomain, t.IsActive, strings.Join(t.Features.Names(), ","))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(create, deleteCmd, list)
	return cmd
}

func newHostAdminCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "host-admin",
		Short: "Create the host admin account in the main database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("HOST_ADMIN_PASSWORD")
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			u, err := a.users.EnsureHostAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			cmd.Printf("Host admin %s (%s) ready\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password, defaults to $HOST_ADMIN_PASSWORD")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read audit logs",
	}

	var (
		tenantID string
		opts     audit.ListOptions
		action   string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List audit entries, newest first. Without --tenant the host log is read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink, err := audit.NewSink(a.cfg.AuditLogDir, a.log)
			if err != nil {
				return err
			}
			opts.Action = audit.Action(action)
			page, err := sink.List(cmd.Context(), audit.Scope(tenantID), opts)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tACTION\tENTITY\tUSER")
			for _, e := range page.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Format("2006-01-02T15:04:05Z"), e.Action, e.Entity, e.UserID)
			}
			fmt.Fprintf(w, "\n%d of %d entries\n", len(page.Items), page.Total)
			return w.Flush()
		},
	}
	list.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	list.Flags().IntVar(&opts.Skip, "skip", 0, "entries to skip")
	list.Flags().IntVar(&opts.Limit, "limit", 50, "maximum entries to return")
	list.Flags().StringVar(&action, "action", "", "only entries with this action")

	cmd.AddCommand(list)
	return cmd
}
