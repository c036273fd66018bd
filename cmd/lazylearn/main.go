package main

import (
	"fmt"
	"os"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
