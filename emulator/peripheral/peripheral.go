/*
Copyright (C) 2024-2026 The sama authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package peripheral

import (
	"errors"
	"fmt"
)

// MaxDevices is the size of the device bus. Index 0 is reserved: when a
// device triggers an interrupt the low byte of the interrupt context
// carries its index, and software-triggered interrupts use 0 there.
const MaxDevices = 256

var ErrReservedIndex = errors.New("device index 0 is reserved")

// Device is a peripheral attached to the bus. The dei instruction reads
// from Input and the deo instruction writes through Output; the context
// byte is device-defined.
type Device interface {
	Name() string
	Reset()
	Input(context byte) uint16
	Output(context byte, value uint16)
}

// Bus holds the attached peripherals, addressed by the high byte of the
// dei/deo source operand.
type Bus struct {
	devices [MaxDevices]Device
}

func (b *Bus) Attach(index byte, d Device) error {
	if index == 0 {
		return ErrReservedIndex
	}
	if b.devices[index] != nil {
		return fmt.Errorf("device index %d already occupied by %s", index, b.devices[index].Name())
	}
	b.devices[index] = d
	return nil
}

// Device returns the peripheral at index, or nil if the slot is empty
// or reserved.
func (b *Bus) Device(index byte) Device {
	if index == 0 {
		return nil
	}
	return b.devices[index]
}

func (b *Bus) Reset() {
	for _, d := range b.devices {
		if d != nil {
			d.Reset()
		}
	}
}
