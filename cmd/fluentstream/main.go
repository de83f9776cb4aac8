package main

import (
	"os"

	"github.com/fluentstream/fluentstream/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
