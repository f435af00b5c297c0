package main

import (
	"fmt"
	"os"

	"nftmarketplace-onchain/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
