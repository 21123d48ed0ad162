package main

import (
	"fmt"
	"os"

	"github.com/pme-sh/lrpc/cmd"
	"github.com/pme-sh/lrpc/revision"
)

func main() {
	if len(os.Args) == 2 {
		switch os.Args[1] {
		case "--version", "-v", "v", "ver":
			fmt.Println(revision.GetVersion())
			os.Exit(0)
		}
	}
	cmd.Execute()
}
