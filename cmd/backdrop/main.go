package main

import (
	"os"

	"github.com/semmidev/backdrop/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
