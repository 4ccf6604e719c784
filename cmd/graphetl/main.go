package main

import "graphetl/internal/cli"

func main() {
	cli.Execute()
}
