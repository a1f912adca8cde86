package main

import (
    "fmt"
    "os"
    "time"

    "github.com/spf13/cobra"

    "github.com/iliyamo/class-reservation/internal/model"
    "github.com/iliyamo/class-reservation/internal/utils"
)

// newTokenCmd mints an access token for operators and local testing.  It
// needs JWT_SECRET but no database.
func newTokenCmd() *cobra.Command {
    var (
        userID uint64
        role   string
        ttl    time.Duration
    )
    cmd := &cobra.Command{
        Use:   "token",
        Short: "Issue an access token for a customer or staff member",
        RunE: func(cmd *cobra.Command, args []string) error {
            secret := os.Getenv("JWT_SECRET")
            if secret == "" {
                return fmt.Errorf("JWT_SECRET is required")
            }
            if userID == 0 {
                return fmt.Errorf("--user is required")
            }
            r, err := model.ParseRole(role)
            if err != nil {
                return err
            }
            tok, err := utils.NewAccessToken(secret, userID, r, ttl)
            if err != nil {
                return err
            }
            fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
            fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", tok.Exp.Format(time.RFC3339))
            return nil
        },
    }
    cmd.Flags().Uint64Var(&userID, "user", 0, "user id (customer id for customers)")
    cmd.Flags().StringVar(&role, "role", string(model.RoleCustomer), "CUSTOMER or STAFF")
    cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
    return cmd
}
