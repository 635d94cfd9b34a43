package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onewirenet/ds2480/adapters/ds2480"
)

func init() {
	rootCmd.AddCommand(enumerateCmd)
}

var enumerateCmd = &cobra.Command{
	Use:   "enumerate",
	Short: "Search the bus and print every device's ROM address",
	RunE:  enumerate,
}

func enumerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	adapter := ds2480.New(loadAdapterConfig())

	if err := adapter.Open(ctx); err != nil {
		return err
	}
	defer adapter.Close()

	more, err := adapter.SearchFirst(ctx)
	if err != nil {
		return err
	}
	for more {
		fmt.Println(adapter.Address())
		more, err = adapter.SearchNext(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}
