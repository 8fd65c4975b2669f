package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Navl-bm/conveyance-note/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		code := cli.ExitFailure
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.Code
		}
		if exitErr == nil || !exitErr.Reported {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(code)
	}
}
