package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"BasketLedger/internal/server"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var serverAddr string

var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Submit one JSON command to a running basketd (stdin when no file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		raw, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}

		return withClient(cmd, func(c *server.Client) (any, error) {
			return c.Execute(cmd.Context(), raw)
		})
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Query a running basketd",
}

var listState, listBasket, listCreator string

func init() {
	for _, c := range []*cobra.Command{submitCmd, inspectCmd} {
		c.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:9090", "basketd gRPC address")
		rootCmd.AddCommand(c)
	}

	inspectCmd.AddCommand(
		&cobra.Command{
			Use:   "basket <address>",
			Short: "Show a basket's composition and totals",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *server.Client) (any, error) {
					return c.GetBasket(cmd.Context(), args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "holder <basket> <holder>",
			Short: "Show a holder's balance and claims in a basket",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *server.Client) (any, error) {
					return c.GetHolder(cmd.Context(), args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "order <key>",
			Short: "Show one escrow order",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(c *server.Client) (any, error) {
					return c.GetOrder(cmd.Context(), args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "integrity",
			Short: "Run every conservation check",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withClient(cmd, func(c *server.Client) (any, error) {
					return c.VerifyIntegrity(cmd.Context())
				})
			},
		},
	)

	var journalLimit int
	journalCmd := &cobra.Command{
		Use:   "journal <account-path>",
		Short: "Show persisted journal entries touching an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *server.Client) (any, error) {
				return c.JournalHistory(cmd.Context(), args[0], journalLimit)
			})
		},
	}
	journalCmd.Flags().IntVar(&journalLimit, "limit", 100, "maximum entries")
	inspectCmd.AddCommand(journalCmd, &cobra.Command{
		Use:   "balances <owner>",
		Short: "Show the projected balances of an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *server.Client) (any, error) {
				return c.ProjectedBalances(cmd.Context(), args[0])
			})
		},
	})

	ordersCmd := &cobra.Command{
		Use:   "orders",
		Short: "List escrow orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(c *server.Client) (any, error) {
				return c.ListOrders(cmd.Context(), server.ListOrdersRequest{
					State:   listState,
					Basket:  listBasket,
					Creator: listCreator,
				})
			})
		},
	}
	ordersCmd.Flags().StringVar(&listState, "state", "", "open, filled or cancelled")
	ordersCmd.Flags().StringVar(&listBasket, "basket", "", "basket address")
	ordersCmd.Flags().StringVar(&listCreator, "creator", "", "creator address")
	inspectCmd.AddCommand(ordersCmd)
}

// withClient dials serverAddr, runs call and prints its result as JSON.
func withClient(cmd *cobra.Command, call func(*server.Client) (any, error)) error {
	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", serverAddr, err)
	}
	defer conn.Close()

	out, err := call(server.NewClient(conn))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
