package main

import (
	"github.com/helixml/ditty/pkg/cli"
)

func main() {
	cli.Execute()
}
