package main

import (
	"os"

	"github.com/web3-frozen/ousd-analytics/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
