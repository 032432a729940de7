package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	resourcestore "github.com/dalemusser/groupvault/internal/app/store/resources"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/spf13/cobra"
)

func issueSecretCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-secret",
		Short: "Issue a new bootstrap secret, superseding any unclaimed one",
		Long: `Issue a new bootstrap secret. The plaintext token is printed once and
stored only as a bcrypt hash. Send "/init <token>" in a group to make the
sender its super admin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.connect(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			token, err := e.svc.Issuer.Issue(e.ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func tombstonesCmd(g *globals) *cobra.Command {
	var (
		group int64
		limit int64
	)
	cmd := &cobra.Command{
		Use:   "tombstones",
		Short: "List resources whose external delete is still pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.connect(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			f := resourcestore.TombstoneFilter{Limit: limit}
			if cmd.Flags().Changed("group") {
				f.GroupID = &group
			}
			rows, err := e.svc.Resources.ListTombstones(e.ctx, f)
			if err != nil {
				return err
			}
			writeTombstones(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().Int64Var(&group, "group", 0, "Only this chat group")
	cmd.Flags().Int64Var(&limit, "limit", 100, "Most rows to list")
	return cmd
}

func writeTombstones(out io.Writer, rows []models.Resource) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "no pending deletions")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGROUP\tFILE\tDELETED AT\tATTEMPTS\tLAST ERROR")
	for _, r := range rows {
		deletedAt := ""
		if r.DeletedAt != nil {
			deletedAt = r.DeletedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\n",
			r.ID, r.GroupID, r.Artifact.FileName, deletedAt, r.DeleteAttempts, r.LastDeleteError)
	}
	_ = tw.Flush()
}

func reconcileCmd(g *globals) *cobra.Command {
	var retryID int64
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Retry pending external deletes now",
		Long: `Run one reconciliation sweep over tombstones older than --grace, or retry a
single tombstone with --id. --id clears the attempt counter first, so it
also revives tombstones that hit --max-attempts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.connect(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()
			out := cmd.OutOrStdout()

			if retryID != 0 {
				if err := e.svc.Resources.ResetDeleteAttempts(e.ctx, retryID); err != nil {
					if errors.Is(err, errs.ErrNotFound) {
						return fmt.Errorf("no tombstone with id %d", retryID)
					}
					return err
				}
				if err := e.svc.Reconciler.Retry(e.ctx, retryID); err != nil {
					return err
				}
				fmt.Fprintf(out, "resource %d deleted\n", retryID)
				return nil
			}

			finalized, failed, err := e.svc.Reconciler.Sweep(e.ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "finalized %d, still pending %d\n", finalized, failed)
			return nil
		},
	}
	cmd.Flags().Int64Var(&retryID, "id", 0, "Retry this resource only")
	cmd.Flags().DurationVar(&g.grace, "grace", 2*time.Minute, "Skip tombstones younger than this")
	cmd.Flags().IntVar(&g.maxAttempts, "max-attempts", 10, "Skip tombstones with this many failed attempts (0 = no cap)")
	return cmd
}

func rolesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Inspect or override group roles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <group-id>",
		Short: "List the role entries of a group",
		Long: `List the role entries of a group. Group chat ids are negative, so put
them after "--", e.g. vaultctl roles list -- -1001234567890.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("group id: %w", err)
			}
			e, err := g.connect(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			entries, err := e.svc.Roles.ListByGroup(e.ctx, groupID)
			if err != nil {
				return err
			}
			writeRoles(cmd.OutOrStdout(), entries)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <group-id> <user-id> <role>",
		Short: "Set a role directly, bypassing in-chat authorization",
		Long: `Set a role directly. Use it to recover a group whose super admin left.
The change is recorded in the audit trail with actor 0. Put negative group
ids after "--".`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("group id: %w", err)
			}
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("user id: %w", err)
			}
			role, err := models.ParseRole(args[2])
			if err != nil {
				return err
			}
			if !role.Valid() {
				return fmt.Errorf("role %q cannot be assigned", args[2])
			}
			e, err := g.connect(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			prev, err := e.svc.Roles.Set(e.ctx, groupID, userID, role, nil)
			if err != nil {
				return err
			}
			e.svc.Audit.RoleSet(e.ctx, groupID, 0, userID, prev.String(), role.String())
			fmt.Fprintf(cmd.OutOrStdout(), "user %d in group %d: %s -> %s\n", userID, groupID, prev, role)
			return nil
		},
	})
	return cmd
}

func writeRoles(out io.Writer, entries []models.RoleEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "no roles assigned")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tROLE\tGRANTED BY\tUPDATED")
	for _, e := range entries {
		by := "init"
		if e.GrantedBy != nil {
			by = strconv.FormatInt(*e.GrantedBy, 10)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.UserID, e.Role, by, e.UpdatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}
