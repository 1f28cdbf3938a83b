package main

import (
	"github.com/netherd/inetproxy/cmd"
)

func main() {
	// Execute the root command
	cmd.Execute()
}
