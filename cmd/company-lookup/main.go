package main

import "company-lookup/internal/cli"

func main() {
	cli.Execute()
}
