package main

import (
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"

	"github.com/yejune/go-jshost/jshost-cli/cmd"
	_ "github.com/yejune/go-jshost/jshost-cli/cmd/version"
)

func main() {
	if os.Getenv("JSHOST_NO_BANNER") == "" && len(os.Args) < 2 {
		art := figure.NewFigure("jshost", "slant", true)
		art.Print()
		fmt.Println()
		color.Magenta("Embedded JavaScript host. Run `jshost-cli --help` to see commands.\n\n")
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
