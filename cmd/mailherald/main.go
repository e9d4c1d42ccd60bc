package main

import (
	"os"

	"github.com/mailherald/mailherald/internal/cli"
)

func main() {
	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
