package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sipico/admin-auth/internal/auth"
	"github.com/sipico/admin-auth/internal/config"
	"github.com/sipico/admin-auth/internal/storage"
	"github.com/sipico/admin-auth/internal/user"
)

// RegisterPath is appended to admin.absoluteUrl in invitation links.
const RegisterPath = "/auth/register"

// userSummary is the printed form of an admin user; it never carries hashes or tokens.
type userSummary struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	Firstname string   `json:"firstname"`
	Lastname  string   `json:"lastname,omitempty"`
	IsActive  bool     `json:"isActive"`
	Roles     []string `json:"roles"`
}

func summarize(u *storage.User) userSummary {
	roles := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = r.Code
	}
	return userSummary{
		ID:        u.ID,
		Email:     u.Email,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
		IsActive:  u.IsActive,
		Roles:     roles,
	}
}

func newRegisterAdminCmd() *cobra.Command {
	var info auth.AdminInfo
	cmd := &cobra.Command{
		Use:   "register-admin",
		Short: "Create the first super admin (password read from stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			info.Password = password
			return withApp(cmd, func(a *app) error {
				u, err := a.bootstrap.RegisterAdmin(cmd.Context(), info)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summarize(u))
			})
		},
	}
	cmd.Flags().StringVar(&info.Email, "email", "", "Email")
	cmd.Flags().StringVar(&info.Firstname, "firstname", "", "First name")
	cmd.Flags().StringVar(&info.Lastname, "lastname", "", "Last name")
	return cmd
}

func newUserCmd() *cobra.Command {
	c := &cobra.Command{Use: "user", Short: "Manage admin users"}
	c.AddCommand(newUserInviteCmd())
	c.AddCommand(newUserDeleteCmd())
	c.AddCommand(newUserCheckCmd())
	c.AddCommand(newUserForgotPasswordCmd())
	c.AddCommand(newUserResetPasswordCmd())
	c.AddCommand(newUserRegisterCmd())
	return c
}

func newUserInviteCmd() *cobra.Command {
	var (
		params user.CreateParams
		roles  []string
	)
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Invite an admin user and print the registration link",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				for _, code := range roles {
					r, err := a.store.GetRoleByCode(cmd.Context(), code)
					if errors.Is(err, storage.ErrNotFound) {
						return fmt.Errorf("unknown role %q", code)
					}
					if err != nil {
						return err
					}
					params.Roles = append(params.Roles, r.ID)
				}

				u, err := a.users.Create(cmd.Context(), params)
				if err != nil {
					return err
				}
				if u.RegistrationToken != nil {
					base := strings.TrimSuffix(a.settings.GetString(config.AbsoluteURLPath, ""), "/")
					fmt.Fprintf(cmd.OutOrStdout(), "Registration link: %s%s?registrationToken=%s\n",
						base, RegisterPath, *u.RegistrationToken)
				}
				return printJSON(cmd.OutOrStdout(), summarize(u))
			})
		},
	}
	cmd.Flags().StringVar(&params.Email, "email", "", "Email")
	cmd.Flags().StringVar(&params.Firstname, "firstname", "", "First name")
	cmd.Flags().StringVar(&params.Lastname, "lastname", "", "Last name")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role code (repeatable)")
	return cmd
}

func newUserDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete admin users, keeping at least one active super admin",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, len(args))
			for i, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid user id %q", arg)
				}
				ids[i] = id
			}
			return withApp(cmd, func(a *app) error {
				deleted, err := a.users.DeleteByIDs(cmd.Context(), ids)
				if err != nil {
					return err
				}
				for _, u := range deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "User deleted: id=%d email=%s\n", u.ID, u.Email)
				}
				return nil
			})
		},
	}
}

func newUserCheckCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify admin credentials (password read from stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				u, msg, err := a.gate.CheckCredentials(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				if u == nil {
					return errors.New(msg)
				}
				return printJSON(cmd.OutOrStdout(), summarize(u))
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email")
	return cmd
}

func newUserForgotPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Send a password reset email",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.gate.ForgotPassword(cmd.Context(), email); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "If the account exists, a reset email was sent")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email")
	return cmd
}

func newUserResetPasswordCmd() *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset code (password read from stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				u, err := a.gate.ResetPassword(cmd.Context(), code, password)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summarize(u))
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Reset code from the email")
	return cmd
}

func newUserRegisterCmd() *cobra.Command {
	var (
		registrationToken string
		info              auth.RegistrationInfo
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Complete an invitation (password read from stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			info.Password = password
			return withApp(cmd, func(a *app) error {
				u, err := a.gate.Register(cmd.Context(), registrationToken, info)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summarize(u))
			})
		},
	}
	cmd.Flags().StringVar(&registrationToken, "token", "", "Registration token from the invitation link")
	cmd.Flags().StringVar(&info.Firstname, "firstname", "", "First name")
	cmd.Flags().StringVar(&info.Lastname, "lastname", "", "Last name")
	return cmd
}
