package cli

import (
	"context"
	"fmt"

	"resumatch/internal/client"
	"resumatch/internal/types"

	"github.com/spf13/cobra"
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Show and manage the subscription",
}

var billingStatusCmd = fetchCommand("status", "Show the current plan and usage", cobra.NoArgs,
	func(cmd *cobra.Command, c *client.Client, args []string) (*types.BillingStatus, error) {
		return c.BillingStatus(cmd.Context())
	})

var billingCheckoutCmd = &cobra.Command{
	Use:   "checkout [plan]",
	Short: "Print a checkout URL for a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSessionURL(cmd, func(ctx context.Context, c *client.Client) (string, error) {
			return c.CreateCheckoutSession(ctx, args[0])
		})
	},
}

var billingPortalCmd = &cobra.Command{
	Use:   "portal",
	Short: "Print the billing portal URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSessionURL(cmd, func(ctx context.Context, c *client.Client) (string, error) {
			return c.CreatePortalSession(ctx)
		})
	},
}

var dashboardCmd = fetchCommand("dashboard", "Show the account overview", cobra.NoArgs,
	func(cmd *cobra.Command, c *client.Client, args []string) (*types.Dashboard, error) {
		return c.Dashboard(cmd.Context())
	})

func init() {
	billingCmd.AddCommand(billingStatusCmd)
	billingCmd.AddCommand(billingCheckoutCmd)
	billingCmd.AddCommand(billingPortalCmd)
}

func printSessionURL(cmd *cobra.Command, create func(ctx context.Context, c *client.Client) (string, error)) error {
	c, err := newAPIClient(cmd.Context())
	if err != nil {
		return err
	}
	url, err := create(cmd.Context(), c)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Open this URL in a browser to continue:")
	fmt.Fprintln(cmd.OutOrStdout(), url)
	return nil
}
