package main

import (
	"github.com/pso-precache/cmd/cli/cmd"
)

func main() {
	cmd.Execute()
}
