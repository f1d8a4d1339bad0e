// Command replicatord runs the order book replicator: it mirrors a price
// level feed into in-memory books and answers analytics queries over them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "replicatord",
		Short:         "Order book replicator and analytics engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to config file")

	root.AddCommand(serveCmd())
	root.AddCommand(replayCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
