package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	grpcapi "github.com/wyfcoding/optionsvault/internal/options/interfaces/grpc"
)

func writeCmd() *cobra.Command {
	var asset, optType, collateral, strike, premium, expiry string
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Lock collateral and write a new option",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, grpcapi.MethodWriteOption, map[string]any{
				"asset":             asset,
				"option_type":       optType,
				"collateral_amount": collateral,
				"strike_price":      strike,
				"premium":           premium,
				"expiry":            expiry,
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&asset, "asset", "", "settlement asset identifier")
	f.StringVar(&optType, "type", "CALL", "option type, CALL or PUT")
	f.StringVar(&collateral, "collateral", "0", "collateral amount")
	f.StringVar(&strike, "strike", "0", "strike price")
	f.StringVar(&premium, "premium", "0", "premium paid by the buyer")
	f.StringVar(&expiry, "expiry", "0", "expiry ledger height")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func buyCmd() *cobra.Command {
	var asset string
	cmd := &cobra.Command{
		Use:   "buy <option-id>",
		Short: "Pay the premium and become the option holder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkUint(args[0]); err != nil {
				return err
			}
			return call(cmd, grpcapi.MethodBuyOption, map[string]any{"asset": asset, "option_id": args[0]})
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "settlement asset identifier")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func exerciseCmd() *cobra.Command {
	var asset string
	cmd := &cobra.Command{
		Use:   "exercise <option-id>",
		Short: "Exercise a held option at the reference price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkUint(args[0]); err != nil {
				return err
			}
			return call(cmd, grpcapi.MethodExerciseOption, map[string]any{"asset": asset, "option_id": args[0]})
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "settlement asset identifier")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func optionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "option <option-id>",
		Short: "Show an option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkUint(args[0]); err != nil {
				return err
			}
			return call(cmd, grpcapi.MethodGetOption, map[string]any{"option_id": args[0]})
		},
	}
}

func positionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position <principal>",
		Short: "Show the options written and held by a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, grpcapi.MethodGetUserPosition, map[string]any{"user": args[0]})
		},
	}
}

func protocolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protocol",
		Short: "Show the contract owner and protocol fee rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, grpcapi.MethodGetProtocol, map[string]any{})
		},
	}
}

func feeRateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fee-rate <basis-points>",
		Short: "Set the protocol fee rate (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkUint(args[0]); err != nil {
				return err
			}
			return call(cmd, grpcapi.MethodSetProtocolFeeRate, map[string]any{"rate": args[0]})
		},
	}
}

func priceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Read or publish price feeds",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <symbol>",
			Short: "Show the latest price for a symbol",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, grpcapi.MethodGetPriceFeed, map[string]any{"symbol": args[0]})
			},
		},
		&cobra.Command{
			Use:   "set <symbol> <price> <timestamp>",
			Short: "Publish a price (owner only)",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, a := range args[1:] {
					if err := checkUint(a); err != nil {
						return err
					}
				}
				return call(cmd, grpcapi.MethodUpdatePriceFeed, map[string]any{
					"symbol":    args[0],
					"price":     args[1],
					"timestamp": args[2],
				})
			},
		},
	)
	return cmd
}

func whitelistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage approved assets and allowed symbols (owner only)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "asset <asset> <true|false>",
			Short: "Approve or revoke a settlement asset",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				approved, err := strconv.ParseBool(args[1])
				if err != nil {
					return err
				}
				return call(cmd, grpcapi.MethodSetApprovedAsset, map[string]any{"asset": args[0], "approved": approved})
			},
		},
		&cobra.Command{
			Use:   "symbol <symbol> <true|false>",
			Short: "Allow or disallow a price symbol",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				allowed, err := strconv.ParseBool(args[1])
				if err != nil {
					return err
				}
				return call(cmd, grpcapi.MethodSetAllowedSymbol, map[string]any{"symbol": args[0], "allowed": allowed})
			},
		},
	)
	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <asset> <principal>",
		Short: "Show a settlement asset balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, grpcapi.MethodGetBalance, map[string]any{"asset": args[0], "owner": args[1]})
		},
	}
}

func checkUint(s string) error {
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return fmt.Errorf("%q is not an unsigned integer", s)
	}
	return nil
}
