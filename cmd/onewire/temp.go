package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onewirenet/ds2480/adapters/ds2480"
	"github.com/onewirenet/ds2480/devices/ds18x20"
)

func init() {
	rootCmd.AddCommand(tempCmd)
}

var tempCmd = &cobra.Command{
	Use:   "temp",
	Short: "Convert and read every DS18S20/DS18B20 on the bus",
	RunE:  temp,
}

func temp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	adapter := ds2480.New(loadAdapterConfig())

	if err := adapter.Open(ctx); err != nil {
		return err
	}
	defer adapter.Close()

	adapter.TargetFamilies([]byte{ds18x20.FamilyDS18S20, ds18x20.FamilyDS18B20})

	var sensors []*ds18x20.Device
	more, err := adapter.SearchFirst(ctx)
	if err != nil {
		return err
	}
	for more {
		dev, err := ds18x20.New(adapter, adapter.Address())
		if err != nil {
			logErr(cmd, err)
		} else {
			sensors = append(sensors, dev)
		}
		more, err = adapter.SearchNext(ctx)
		if err != nil {
			return err
		}
	}

	if err := ds18x20.ConvertAll(ctx, adapter); err != nil {
		return err
	}

	for _, s := range sensors {
		c, err := s.LastTemp(ctx)
		if err != nil {
			logErr(cmd, err)
			continue
		}
		fmt.Printf("%s: %.4fC (%.4fF)\n", s.Address(), c, c*9/5+32)
	}
	return nil
}
