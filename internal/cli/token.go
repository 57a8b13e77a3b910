package cli

import (
	"fmt"
	"time"

	"classroom-quiz-service/internal/auth"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/domain"

	"github.com/spf13/cobra"
)

// NewTokenCmd issues a signed token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		role   string
		ttl    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret not configured")
			}
			lifetime := config.TTLDuration(ttl, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))
			token, err := auth.NewVerifier(cfg.Auth.JWTSecret).Issue(userID, domain.Role(role), lifetime)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "TEACHER or STUDENT")
	cmd.Flags().StringVar(&ttl, "ttl", "", "token lifetime, defaults to auth.token_ttl")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
