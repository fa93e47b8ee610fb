package main

import "github.com/dmitrijs2005/secretvault/internal/client/cli"

func main() {
	cli.Execute()
}
