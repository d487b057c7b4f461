package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/vlesskeeper/internal/cli"
)

func main() {

	ctx := context.Background()
	app := cli.NewApp(os.Stdout, os.Stderr)

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

}
