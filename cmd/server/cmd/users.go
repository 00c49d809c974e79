package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/storage"
	"github.com/spf13/cobra"
)

func newUsersCommand(root *rootOptions) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage registered users",
	}

	var email, role string
	setRoleCmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of a registered user",
		Long: `Change the role of a user who has signed in at least once.

Roles: ADMIN, STAFF, EVENT_OWNER. Admins may modify any event; everyone
else may only modify the events they created.`,
		Example: `  rsvp-server users set-role --email ops@example.com --role ADMIN`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := auth.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q (want ADMIN, STAFF, or EVENT_OWNER)", role)
			}
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("--email is required")
			}

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.Logging)

			repo, pool, err := openRepository(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, cfg.Auth.JWTExpiry)

			// The lookup by email and the role write commit together.
			var user *users.User
			err = repo.WithTx(cmd.Context(), func(ctx context.Context, tx storage.Repository) error {
				var err error
				user, err = users.NewResolver(verifier, tx.Users(), logger).SetRole(ctx, email, parsed)
				return err
			})
			if errors.Is(err, users.ErrNotFound) {
				return fmt.Errorf("no user registered with email %q", email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", user.Email, user.ID, user.Role)
			return nil
		},
	}
	setRoleCmd.Flags().StringVar(&email, "email", "", "email of the user")
	setRoleCmd.Flags().StringVar(&role, "role", "", "new role (ADMIN, STAFF, EVENT_OWNER)")
	_ = setRoleCmd.MarkFlagRequired("email")
	_ = setRoleCmd.MarkFlagRequired("role")

	usersCmd.AddCommand(setRoleCmd)
	return usersCmd
}
