package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"example.com/fitledger/internal/auth"
	"example.com/fitledger/internal/config"
	"example.com/fitledger/internal/domain"
)

func newAdminCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage ledger administrators",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List administrators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				for _, p := range svc.Admins() {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <principal>",
		Short: "Grant admin rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}
			return withLedger(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				return svc.AddAdmin(ctx, caller, domain.Principal(args[0]))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <principal>",
		Short: "Revoke admin rights",
		Long: `Revoke admin rights from a principal.

Removing the last administrator is allowed and leaves the ledger read-only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}
			return withLedger(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				return svc.RemoveAdmin(ctx, caller, domain.Principal(args[0]))
			})
		},
	})
	return cmd
}

func newUserCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Register users and read their scores",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <user>",
		Short: "Register a user, resetting the score of an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}
			return withLedger(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				return svc.AddUser(ctx, caller, domain.UserID(args[0]))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "score <user>",
		Short: "Print the number of accepted activities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				score, err := svc.UserActivityScore(domain.UserID(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), score)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "activities <user>",
		Short: "Print the activities of a user in the order they were recorded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				records, err := svc.UserActivities(domain.UserID(args[0]))
				if err != nil {
					return err
				}
				printRecords(cmd, records)
				return nil
			})
		},
	})
	return cmd
}

func newActivityCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Record and search activities",
	}

	var (
		minutes uint32
		steps   uint32
		date    string
	)
	add := &cobra.Command{
		Use:   "add <user>",
		Short: "Record an activity for a registered user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.caller()
			if err != nil {
				return err
			}
			return withLedger(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				rec, err := svc.AddActivity(ctx, caller, domain.ActivityInput{
					UserID:  domain.UserID(args[0]),
					Minutes: minutes,
					Steps:   steps,
					Date:    date,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", rec.Seq, rec)
				return nil
			})
		},
	}
	add.Flags().Uint32Var(&minutes, "minutes", 0, "Active minutes")
	add.Flags().Uint32Var(&steps, "steps", 0, "Step count")
	add.Flags().StringVar(&date, "date", "", "Free-form date label")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "search <text>",
		Short: "Print every activity whose text contains the given fragment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				printRecords(cmd, svc.SearchActivities(args[0]))
				return nil
			})
		},
	})
	return cmd
}

func newThresholdsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Show or change the acceptance thresholds",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				t := svc.Thresholds()
				fmt.Fprintf(cmd.OutOrStdout(), "min_active_minutes\t%d\nmin_steps\t%d\n", t.MinActiveMinutes, t.MinSteps)
				return nil
			})
		},
	})

	setter := func(use, short string, apply func(context.Context, *domain.Service, domain.Principal, uint32) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <value>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				caller, err := opts.caller()
				if err != nil {
					return err
				}
				value, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid value %q: %w", args[0], err)
				}
				return withLedger(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
					return apply(ctx, svc, caller, uint32(value))
				})
			},
		}
	}
	cmd.AddCommand(
		setter("set-minutes", "Set the minimum active minutes", func(ctx context.Context, svc *domain.Service, caller domain.Principal, v uint32) error {
			return svc.SetMinActiveMinutes(ctx, caller, v)
		}),
		setter("set-steps", "Set the minimum step count", func(ctx context.Context, svc *domain.Service, caller domain.Principal, v uint32) error {
			return svc.SetMinSteps(ctx, caller, v)
		}),
	)
	return cmd
}

func newTokenCmd(opts *options) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <principal>",
		Short: "Mint a development bearer token for the ledger API",
		Long: `Mint an HS256 bearer token whose subject is the given principal, signed
with JWT_SECRET and JWT_ISSUER. Intended for local development only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithFile(opts.configPath)
			if err != nil {
				return err
			}
			token, err := auth.Sign(args[0], ttl, auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func printRecords(cmd *cobra.Command, records []domain.ActivityRecord) {
	for _, rec := range records {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", rec.Seq, rec)
	}
}
