// optionsctl 期权合约命令行客户端，通过 gRPC 调用 optionsvault
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	grpcapi "github.com/wyfcoding/optionsvault/internal/options/interfaces/grpc"
	"github.com/wyfcoding/optionsvault/pkg/grpcclient"
)

var (
	target    string
	principal string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "optionsctl",
	Short:         "Command line client for the options vault",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&target, "target", envOr("OPTIONSVAULT_TARGET", "127.0.0.1:50051"), "gRPC address of the options vault")
	rootCmd.PersistentFlags().StringVarP(&principal, "principal", "p", os.Getenv("OPTIONSVAULT_PRINCIPAL"), "caller principal sent with every request")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	rootCmd.AddCommand(
		writeCmd(),
		buyCmd(),
		exerciseCmd(),
		optionCmd(),
		positionCmd(),
		protocolCmd(),
		feeRateCmd(),
		priceCmd(),
		whitelistCmd(),
		balanceCmd(),
	)
}

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// call 建立连接、调用一次并以表格输出结果
func call(cmd *cobra.Command, method string, req map[string]any) error {
	conn, err := grpcclient.NewClient(grpcclient.ClientConfig{
		Target:         target,
		ConnTimeout:    5,
		RequestTimeout: int(timeout / time.Second),
		MaxRetries:     2,
		RetryDelay:     200,
		Principal:      principal,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out, err := grpcapi.NewClient(conn).Call(ctx, method, req)
	if err != nil {
		return err
	}
	render(cmd.OutOrStdout(), out)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
