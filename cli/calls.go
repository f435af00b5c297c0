package cli

import (
	"context"
	"math/big"

	"github.com/spf13/cobra"

	"nftmarketplace-onchain/gateway/contract"
	"nftmarketplace-onchain/model"
	usecase "nftmarketplace-onchain/usecase/contract"
)

type callFunc func(ctx context.Context, uc usecase.ContractUsecase, args []string) (*model.CallResult, error)

// callCommand は1回の状態変更呼び出しを行うサブコマンドを作る
func (a *app) callCommand(use, short string, nargs int, fn callFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, true, func(s *services) error {
				result, err := fn(cmd.Context(), s.contractUC, args)
				if err != nil {
					return err
				}
				return a.printJSON(result)
			})
		},
	}
}

func (a *app) callCommands() []*cobra.Command {
	var (
		unlimited bool
		saleEnd   string
	)
	createItem := a.callCommand("create-item <item-id> <price-in-eth-wei> <price-in-token> <uri>",
		"List a new item", 4,
		func(ctx context.Context, uc usecase.ContractUsecase, args []string) (*model.CallResult, error) {
			item := &model.NewItem{URI: args[3], IsUnlimited: unlimited}
			var err error
			if item.ItemId, err = parseUint(model.OpCreateItem, "item id", args[0]); err != nil {
				return nil, err
			}
			if item.PriceInEth, err = parseUint(model.OpCreateItem, "price in eth", args[1]); err != nil {
				return nil, err
			}
			if item.PriceInToken, err = parseUint(model.OpCreateItem, "price in token", args[2]); err != nil {
				return nil, err
			}
			if item.SaleEndTime, err = parseUint(model.OpCreateItem, "sale end time", saleEnd); err != nil {
				return nil, err
			}
			return uc.CreateItem(ctx, item)
		})
	createItem.Flags().BoolVar(&unlimited, "unlimited", false, "item has unlimited supply")
	createItem.Flags().StringVar(&saleEnd, "sale-end", "0", "sale end time as unix seconds, 0 for none")

	return []*cobra.Command{
		a.callCommand("change-owner <address>", "Transfer contract ownership", 1,
			func(ctx context.Context, uc usecase.ContractUsecase, args []string) (*model.CallResult, error) {
				return uc.ChangeOwner(ctx, args[0])
			}),
		a.callCommand("change-fee <fee>", "Set the marketplace fee", 1,
			func(ctx context.Context, uc usecase.ContractUsecase, args []string) (*model.CallResult, error) {
				fee, err := parseUint(model.OpChangeFee, "fee", args[0])
				if err != nil {
					return nil, err
				}
				return uc.ChangeFee(ctx, fee)
			}),
		a.callCommand("mark-sold <item-id>", "Mark an item as sold", 1,
			func(ctx context.Context, uc usecase.ContractUsecase, args []string) (*model.CallResult, error) {
				id, err := parseUint(model.OpMarkItemAsSold, "item id", args[0])
				if err != nil {
					return nil, err
				}
				return uc.MarkItemAsSold(ctx, id)
			}),
		a.callCommand("mark-unsold <item-id>", "Mark an item as unsold", 1,
			func(ctx context.Context, uc usecase.ContractUsecase, args []string) (*model.CallResult, error) {
				id, err := parseUint(model.OpMarkItemAsUnsold, "item id", args[0])
				if err != nil {
					return nil, err
				}
				return uc.MarkItemAsUnsold(ctx, id)
			}),
		a.callCommand("blacklist <address>", "Blacklist a user", 1,
			func(ctx context.Context, uc usecase.ContractUsecase, args []string) (*model.CallResult, error) {
				return uc.BlacklistUser(ctx, args[0])
			}),
		a.callCommand("whitelist <address>", "Remove a user from the blacklist", 1,
			func(ctx context.Context, uc usecase.ContractUsecase, args []string) (*model.CallResult, error) {
				return uc.WhitelistUser(ctx, args[0])
			}),
		createItem,
		a.callCommand("buy-eth <item-id> <ether>", "Buy an item paying in ether", 2,
			func(ctx context.Context, uc usecase.ContractUsecase, args []string) (*model.CallResult, error) {
				id, err := parseUint(model.OpBuyWithEth, "item id", args[0])
				if err != nil {
					return nil, err
				}
				value, err := contract.ParseEther(args[1])
				if err != nil {
					return nil, model.ConfigError(model.OpBuyWithEth, "value: %v", err)
				}
				return uc.BuyWithEth(ctx, id, value)
			}),
		a.callCommand("buy-token <item-id> <amount>", "Buy an item paying in the ERC-20 token", 2,
			func(ctx context.Context, uc usecase.ContractUsecase, args []string) (*model.CallResult, error) {
				id, err := parseUint(model.OpBuyWithToken, "item id", args[0])
				if err != nil {
					return nil, err
				}
				amount, err := parseUint(model.OpBuyWithToken, "token amount", args[1])
				if err != nil {
					return nil, err
				}
				return uc.BuyWithToken(ctx, id, amount)
			}),
	}
}

// parseUint は10進または0x付き16進の非負整数を読む
func parseUint(op, name, s string) (*big.Int, error) {
	n, ok := contract.ParseInteger(s)
	if !ok || n.Sign() < 0 {
		return nil, model.ConfigError(op, "%s must be a non-negative integer, got %q", name, s)
	}
	return n, nil
}
