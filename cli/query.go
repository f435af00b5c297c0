package cli

import (
	"github.com/spf13/cobra"

	"nftmarketplace-onchain/model"
)

func (a *app) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-tx <tx-hash>",
		Short: "Look up a transaction and report whether it succeeded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, false, func(s *services) error {
				v, err := s.contractUC.VerifyTransaction(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printJSON(v)
			})
		},
	}
}

func (a *app) historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List calls recorded in the local journal, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, false, func(s *services) error {
				entries, err := s.contractUC.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if entries == nil {
					entries = []*model.JournalEntry{}
				}
				return a.printJSON(entries)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max entries to show")
	return cmd
}

func (a *app) tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Payment token balances and allowance",
	}

	balance := &cobra.Command{
		Use:   "balance [account]",
		Short: "Show ETH and token balances (default: signing account)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, false, func(s *services) error {
				b, err := s.paymentUC.GetBalances(cmd.Context(), firstArg(args))
				if err != nil {
					return err
				}
				return a.printJSON(b)
			})
		},
	}

	allowance := &cobra.Command{
		Use:   "allowance [owner]",
		Short: "Show how much of the token the marketplace may spend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, false, func(s *services) error {
				n, err := s.paymentUC.GetAllowance(cmd.Context(), firstArg(args))
				if err != nil {
					return err
				}
				return a.printJSON(map[string]string{"owner": firstArg(args), "allowance": n.String()})
			})
		},
	}

	approve := &cobra.Command{
		Use:   "approve <amount>",
		Short: "Allow the marketplace to spend the given token amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseUint("approve", "amount", args[0])
			if err != nil {
				return err
			}
			return a.withServices(cmd, true, func(s *services) error {
				result, err := s.paymentUC.Approve(cmd.Context(), amount)
				if err != nil {
					return err
				}
				return a.printJSON(result)
			})
		},
	}

	cmd.AddCommand(balance, allowance, approve)
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
