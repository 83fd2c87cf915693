package main

import "studio/internal/cli"

func main() {
	cli.Main()
}
