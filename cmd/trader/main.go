package main

import "github.com/rustyeddy/optiontrader/internal/cli"

func main() {
	cli.Execute()
}
