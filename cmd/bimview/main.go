package main

import "github.com/dl-alexandre/bimview/internal/cli"

func main() {
	cli.Execute()
}
