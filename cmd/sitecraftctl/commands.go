package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/smallbiznis/sitecraft/pkg/checkout"
	"github.com/spf13/cobra"
)

func orderCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Manage checkout orders",
	}

	var userID string
	var amount int64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an order for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			var amountPtr *int64
			if cmd.Flags().Changed("amount") {
				amountPtr = &amount
			}
			order, err := flags.client().CreateOrder(ctx, userID, amountPtr)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flags.output, order, func(w io.Writer) {
				fmt.Fprintf(w, "order %s created: %d %s (payment %s)\n", order.OrderID, order.Amount, order.Currency, order.PaymentID)
			})
		},
	}
	create.Flags().StringVar(&userID, "user", "", "User id")
	create.Flags().Int64Var(&amount, "amount", 0, "Amount in minor units (server default when omitted)")
	_ = create.MarkFlagRequired("user")

	cmd.AddCommand(create)
	return cmd
}

func statusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [orderId]",
		Short: "Show the server-side status of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			payment, err := flags.client().Status(ctx, args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flags.output, payment, func(w io.Writer) {
				writePayments(w, []checkout.Payment{*payment})
			})
		},
	}
}

func activeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "active [userId]",
		Short: "Show whether a user currently holds an entitlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			active, err := flags.client().Active(ctx, args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flags.output, active, func(w io.Writer) {
				if !active.HasActivePayment || active.Payment == nil {
					fmt.Fprintln(w, "no active payment")
					return
				}
				expires := "-"
				if active.Payment.ExpiresAt != nil {
					expires = active.Payment.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "active via %s until %s\n", active.Payment.OrderID, expires)
			})
		},
	}
}

func historyCmd(flags *globalFlags) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history [userId]",
		Short: "List a user's payments, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			payments, err := flags.client().History(ctx, args[0], limit, offset)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flags.output, payments, func(w io.Writer) {
				writePayments(w, payments)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Results to skip")
	return cmd
}

func waitCmd(flags *globalFlags) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "wait [orderId]",
		Short: "Poll an order until it settles or the timeout passes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			cfg := checkout.DefaultPollConfig()
			cfg.MaxElapsed = flags.timeout
			poller := checkout.NewPoller(flags.client(), nil, nil, cfg, flags.logger())

			result, err := poller.Refresh(ctx, userID, args[0])
			if err != nil && !errors.Is(err, checkout.ErrStillPending) {
				return err
			}
			if renderErr := render(cmd.OutOrStdout(), flags.output, result, func(w io.Writer) {
				fmt.Fprintf(w, "order %s: %s (entitled: %t)\n", result.OrderID, result.Status, result.Active)
			}); renderErr != nil {
				return renderErr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id to check the entitlement for")
	return cmd
}

func cancelCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [orderId]",
		Short: "Cancel a pending order; settled orders are left unchanged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			payment, err := flags.client().Cancel(ctx, args[0])
			if err != nil {
				return err
			}
			if payment == nil {
				return fmt.Errorf("order %s: empty response", args[0])
			}
			return render(cmd.OutOrStdout(), flags.output, payment, func(w io.Writer) {
				fmt.Fprintf(w, "order %s is %s\n", payment.OrderID, payment.Status)
			})
		},
	}
}

func render(w io.Writer, format string, value any, text func(io.Writer)) error {
	if strings.EqualFold(format, "json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	}
	text(w)
	return nil
}

func writePayments(w io.Writer, payments []checkout.Payment) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tSTATUS\tAMOUNT\tCREATED")
	for _, p := range payments {
		fmt.Fprintf(tw, "%s\t%s\t%d %s\t%s\n", p.OrderID, p.Status, p.Amount, p.Currency, p.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}
