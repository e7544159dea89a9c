package main

import "kbsearch/internal/cli"

func main() {
	cli.Execute()
}
