package main

import (
	"fmt"
	"os"

	"github.com/maastricht-university/speaker-timeline/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
