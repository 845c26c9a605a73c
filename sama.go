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

package main

import (
	"flag"
	"fmt"

	"github.com/lawa-emu/sama/emulator"
	"github.com/lawa-emu/sama/platform"
	"github.com/lawa-emu/sama/version"
)

var ver bool

func init() {
	flag.BoolVar(&ver, "v", false, "Print version information")
}

func main() {
	flag.Parse()

	if ver {
		fmt.Printf("sama %s (%s)\n", version.Current.FullString(), version.Hash)
		return
	}

	platform.Start(emulator.Start)
}
