// Package ds18x20 is a thin device container over a onewire.Adapter for the
// DS18S20/DS18B20 family of temperature sensors: an external-collaborator
// example of how a higher-level device plugs into the adapter API.
package ds18x20

import (
	"context"
	"fmt"
	"time"

	"github.com/onewirenet/ds2480"
)

const (
	cmdConvertT        byte = 0x44
	cmdReadScratchpad  byte = 0xBE
	cmdWriteScratchpad byte = 0x4E
	cmdCopyScratchpad  byte = 0x48

	// FamilyDS18S20 and FamilyDS18B20 are the ROM family codes this
	// package knows how to decode a scratchpad for.
	FamilyDS18S20 byte = 0x10
	FamilyDS18B20 byte = 0x28
)

const skipROM byte = 0xCC

// Device is one DS18S20/DS18B20 sensor reachable through adapter.
type Device struct {
	adapter onewire.Adapter
	address onewire.RomAddress
}

// New returns a Device for address, failing if the family code isn't one
// this package understands.
func New(adapter onewire.Adapter, address onewire.RomAddress) (*Device, error) {
	switch address.Family() {
	case FamilyDS18S20, FamilyDS18B20:
	default:
		return nil, fmt.Errorf("ds18x20: unsupported family code 0x%02x", address.Family())
	}
	return &Device{adapter: adapter, address: address}, nil
}

// ConvertAll broadcasts a temperature conversion to every device on the bus
// (skip-ROM, so every listener starts a conversion regardless of address)
// and blocks for the worst-case 12-bit conversion time.
func ConvertAll(ctx context.Context, adapter onewire.Adapter) error {
	if _, err := adapter.Reset(ctx); err != nil {
		return err
	}
	if err := adapter.Block(ctx, []byte{skipROM, cmdConvertT}); err != nil {
		return err
	}
	select {
	case <-time.After(750 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Convert starts a conversion on this device alone and waits for it to
// finish.
func (d *Device) Convert(ctx context.Context) error {
	if err := d.adapter.AssertSelect(ctx, d.address); err != nil {
		return err
	}
	if err := d.adapter.Block(ctx, []byte{cmdConvertT}); err != nil {
		return err
	}
	select {
	case <-time.After(750 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// readScratchpad selects the device and reads back its full 9-byte
// scratchpad, validating the trailing CRC-8.
func (d *Device) readScratchpad(ctx context.Context) ([]byte, error) {
	if err := d.adapter.AssertSelect(ctx, d.address); err != nil {
		return nil, err
	}

	buf := []byte{cmdReadScratchpad, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if err := d.adapter.Block(ctx, buf); err != nil {
		return nil, err
	}

	data := buf[1:]
	if onewire.CRC8(data[:8], 0) != data[8] {
		return nil, fmt.Errorf("ds18x20: scratchpad crc8 mismatch for %s", d.address)
	}
	return data, nil
}

// LastTemp returns the temperature, in degrees Celsius, from the device's
// last conversion.
func (d *Device) LastTemp(ctx context.Context) (float64, error) {
	buf, err := d.readScratchpad(ctx)
	if err != nil {
		return 0, err
	}

	lsb := 0.5
	if d.address.Family() == FamilyDS18B20 {
		switch (buf[4] >> 5) & 0x03 {
		case 1:
			lsb = 0.25
		case 2:
			lsb = 0.125
		case 3:
			lsb = 0.0625
		}
	}

	raw := int16(buf[1])<<8 | int16(buf[0])
	return float64(raw) * lsb, nil
}

// WriteAlarms writes the high/low alarm trigger registers (and, on a
// DS18B20, the configuration register) to the scratchpad and copies it to
// the device's EEPROM.
func (d *Device) WriteAlarms(ctx context.Context, high, low, config byte) error {
	if err := d.adapter.AssertSelect(ctx, d.address); err != nil {
		return err
	}
	if err := d.adapter.Block(ctx, []byte{cmdWriteScratchpad, high, low, config}); err != nil {
		return err
	}
	if err := d.adapter.AssertSelect(ctx, d.address); err != nil {
		return err
	}
	return d.adapter.Block(ctx, []byte{cmdCopyScratchpad})
}

// Address returns the device's ROM address.
func (d *Device) Address() onewire.RomAddress {
	return d.address
}
