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

// Package console provides the default character device on the
// peripheral bus. Programs write characters with deo (context 0) and
// poll buffered input with dei: context 0 reads the next character,
// context 1 reports how many are pending.
package console

import (
	"sync"
)

// DefaultIndex is the bus slot the console is attached to by
// convention.
const DefaultIndex = 1

const (
	ctxData  = 0
	ctxCount = 1
)

type Device struct {
	mu     sync.Mutex
	output []byte
	input  []byte
}

func (d *Device) Name() string {
	return "Console"
}

func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.output = d.output[:0]
	d.input = d.input[:0]
}

func (d *Device) Input(context byte) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch context {
	case ctxData:
		if len(d.input) == 0 {
			return 0
		}
		c := d.input[0]
		d.input = d.input[1:]
		return uint16(c)
	case ctxCount:
		return uint16(len(d.input))
	default:
		return 0
	}
}

func (d *Device) Output(context byte, value uint16) {
	if context != ctxData {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.output = append(d.output, byte(value))
}

// Feed queues characters for the running program to read with dei.
func (d *Device) Feed(p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.input = append(d.input, p...)
}

// Drain returns and clears everything the program has written so far.
func (d *Device) Drain() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.output
	d.output = nil
	return out
}
