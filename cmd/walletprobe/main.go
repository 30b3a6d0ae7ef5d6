package main

import (
	"os"

	"github.com/wesleyorama2/walletprobe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
