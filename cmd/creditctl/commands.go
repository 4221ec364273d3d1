package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/and161185/imagify/internal/model"
	"github.com/and161185/imagify/internal/server"
	"github.com/and161185/imagify/internal/utils"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Re-verify stale CREATED orders once and credit the paid ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, logger, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			defer logger.Sync()

			rc := server.NewReconciler(a.Orders, cfg.Reconcile, logger)
			outcomes, err := rc.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			printOutcomes(cmd.OutOrStdout(), outcomes)
			return nil
		},
	}
}

func printOutcomes(out io.Writer, outcomes []server.Outcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(out, "no stale orders")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tPLAN\tRESULT\tDETAIL")
	credited := 0
	for _, o := range outcomes {
		result, detail := describe(o)
		if o.Err == nil && o.Settlement.Credited {
			credited++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Order.ID, o.Order.PlanID, result, detail)
	}
	tw.Flush()
	fmt.Fprintf(out, "%d orders checked, %d credited\n", len(outcomes), credited)
}

func describe(o server.Outcome) (string, string) {
	switch {
	case o.Err != nil:
		return "error", o.Err.Error()
	case o.Settlement.Credited:
		return "credited", fmt.Sprintf("+%d credits", o.Settlement.Credits)
	case o.Settlement.Paid:
		return "already paid", ""
	default:
		return "unpaid", o.Settlement.GatewayStatus
	}
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <order-id>",
		Short: "Verify one order with the gateway and settle it if paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID := args[0]
			if !utils.IsValidOrderID(orderID) {
				return fmt.Errorf("%q is not an order id", orderID)
			}

			a, _, logger, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			defer logger.Sync()

			res, err := a.Orders.VerifyAndSettle(cmd.Context(), orderID)
			if err != nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			return printSettlement(cmd.OutOrStdout(), res, asJSON)
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func printSettlement(out io.Writer, res model.Settlement, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "Order:    %s\n", res.OrderID)
	fmt.Fprintf(out, "Status:   %s\n", res.Status)
	if res.GatewayStatus != "" {
		fmt.Fprintf(out, "Gateway:  %s\n", res.GatewayStatus)
	}
	fmt.Fprintf(out, "Paid:     %t\n", res.Paid)
	fmt.Fprintf(out, "Credited: %t\n", res.Credited)
	if res.Paid {
		fmt.Fprintf(out, "Credits:  %d\n", res.Credits)
		fmt.Fprintf(out, "Balance:  %d\n", res.Balance)
	}
	return nil
}

func plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List the configured credit plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			catalog, err := cfg.Catalog()
			if err != nil {
				return err
			}

			printPlans(cmd.OutOrStdout(), catalog.List(), cfg.Gateway.Currency)
			return nil
		},
	}
}

func printPlans(out io.Writer, list []model.Plan, currency string) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAN\tPRICE\tCREDITS\tDESCRIPTION")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s %s\t%d\t%s\n", p.ID, p.Price.StringFixed(2), currency, p.Credits, p.Description)
	}
	tw.Flush()
}
