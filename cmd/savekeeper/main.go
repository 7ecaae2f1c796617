package main

import "github.com/savekeeper/savekeeper/internal/cli"

func main() {
	cli.Execute()
}
