package main

import (
	"os"

	"github.com/jonesrussell/corecrawl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
