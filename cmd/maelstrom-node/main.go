// cmd/maelstrom-node is the single entrypoint binary for every workload.
// It speaks the Maelstrom node protocol on stdin/stdout regardless of
// which workload is selected.
//
// Example:
//
//	./maelstrom-node -w g_counter
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"maelstrom-nodes/internal/node"
	"maelstrom-nodes/internal/workload"

	"github.com/spf13/cobra"
)

func main() {
	var workloadName string

	root := &cobra.Command{
		Use:   "maelstrom-node",
		Short: "Maelstrom workload node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(workloadName)
		},
	}
	root.Flags().StringVarP(&workloadName, "workload", "w", "", fmt.Sprintf("workload to run, one of %v", workload.Names))
	_ = root.MarkFlagRequired("workload")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(workloadName string) error {
	n := node.New()
	defer n.Close()

	if err := workload.Register(n, workloadName); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		n.Close()
		os.Exit(0)
	}()

	return n.Run()
}
