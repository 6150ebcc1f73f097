package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sipico/admin-auth/internal/token"
)

const dayMillis int64 = 24 * 60 * 60 * 1000

var familyAliases = map[string]string{
	"api":             token.APIToken,
	"transfer":        token.TransferToken,
	"service-account": token.ServiceAccountToken,
}

func resolveFamily(a *app, name string) (*token.Lifecycle, error) {
	if full, ok := familyAliases[name]; ok {
		name = full
	}
	lc, ok := a.tokens[name]
	if !ok {
		return nil, fmt.Errorf("unknown token family %q (must be: api, transfer, service-account)", name)
	}
	return lc, nil
}

func newTokenCmd() *cobra.Command {
	var family string
	c := &cobra.Command{Use: "token", Short: "Manage api, transfer and service-account tokens"}
	c.PersistentFlags().StringVar(&family, "family", "api", "Token family (api|transfer|service-account)")
	c.AddCommand(newTokenCreateCmd(&family))
	c.AddCommand(newTokenListCmd(&family))
	c.AddCommand(newTokenRevokeCmd(&family))
	c.AddCommand(newTokenRegenerateCmd(&family))
	return c
}

func newTokenCreateCmd(family *string) *cobra.Command {
	var (
		params       token.CreateParams
		lifespanDays int64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a token and print it with its secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("lifespan-days") {
				ms := lifespanDays * dayMillis
				params.Lifespan = &ms
			}
			if !cmd.Flags().Changed("permission") {
				params.Permissions = nil
			}
			if !cmd.Flags().Changed("role") {
				params.Roles = nil
			}
			return withApp(cmd, func(a *app) error {
				lc, err := resolveFamily(a, *family)
				if err != nil {
					return err
				}
				tok, err := lc.Create(cmd.Context(), params)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tok)
			})
		},
	}
	cmd.Flags().StringVar(&params.Name, "name", "", "Token name")
	cmd.Flags().StringVar(&params.Description, "description", "", "Description")
	cmd.Flags().StringVar(&params.Type, "type", "", "Api token type (read-only|full-access|custom)")
	cmd.Flags().Int64Var(&lifespanDays, "lifespan-days", 0, "Lifespan in days; omit for no expiry")
	cmd.Flags().StringSliceVar(&params.Permissions, "permission", nil, "Granted action (repeatable)")
	cmd.Flags().StringSliceVar(&params.Roles, "role", nil, "Granted role code for service-account tokens (repeatable)")
	return cmd
}

func newTokenListCmd(family *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tokens ordered by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				lc, err := resolveFamily(a, *family)
				if err != nil {
					return err
				}
				tokens, err := lc.List(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tokens)
			})
		},
	}
}

func newTokenRevokeCmd(family *string) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke ID",
		Short: "Delete a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid token id %q", args[0])
			}
			return withApp(cmd, func(a *app) error {
				lc, err := resolveFamily(a, *family)
				if err != nil {
					return err
				}
				tok, err := lc.Revoke(cmd.Context(), id)
				if err != nil {
					return err
				}
				if tok == nil {
					return fmt.Errorf("token %d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Token revoked: id=%d name=%s\n", tok.ID, tok.Name)
				return nil
			})
		},
	}
}

func newTokenRegenerateCmd(family *string) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate ID",
		Short: "Replace a token secret and print the new one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid token id %q", args[0])
			}
			return withApp(cmd, func(a *app) error {
				lc, err := resolveFamily(a, *family)
				if err != nil {
					return err
				}
				res, err := lc.Regenerate(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}
