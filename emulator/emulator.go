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

// Package emulator assembles a complete machine and hands it to the
// interface layer. The CPU, bus and devices live in the subpackages;
// this package only wires them together from flags.
package emulator

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/lawa-emu/sama/emulator/control"
	"github.com/lawa-emu/sama/emulator/cpu"
	"github.com/lawa-emu/sama/emulator/machine"
	"github.com/lawa-emu/sama/emulator/peripheral"
	"github.com/lawa-emu/sama/emulator/peripheral/console"
	"github.com/lawa-emu/sama/emulator/poki"
	"github.com/lawa-emu/sama/platform"
	"github.com/lawa-emu/sama/script"
	"github.com/lawa-emu/sama/ui"
)

var (
	configPath  string
	historyPath string
	breakpoints string
	refreshHz   int
)

func init() {
	config := defaultPath("init.lua")
	history := defaultPath("history")

	if p, ok := os.LookupEnv("SAMA_CONFIG_PATH"); ok {
		config = p
	}

	flag.StringVar(&configPath, "config", config, "Path to the Lua configuration file")
	flag.StringVar(&historyPath, "history", history, "Path to the prompt history file")
	flag.StringVar(&breakpoints, "bp", "", "Comma separated breakpoint addresses")
	flag.IntVar(&refreshHz, "hz", ui.DefaultRefreshHz, "Screen refresh rate")
}

func defaultPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, "sama", name)
}

// Start is the main loop handed to the platform. It builds the
// machine, maps the program image named on the command line and runs
// the interface until the operator quits.
func Start(p platform.Platform) {
	m := machine.New()
	bus := new(peripheral.Bus)
	if err := bus.Attach(console.DefaultIndex, &console.Device{}); err != nil {
		log.Fatal(err)
	}
	surface := control.New(cpu.New(m, bus))

	if image := flag.Arg(0); image != "" {
		if err := loadImage(p.Fs(), m, surface, image); err != nil {
			log.Fatal(err)
		}
	}
	if err := armBreakpoints(surface, breakpoints); err != nil {
		log.Fatal(err)
	}

	bridge := script.New(surface, p.Fs(), configPath)
	defer bridge.Close()
	if err := bridge.Reload(); err != nil {
		log.Print("configuration: ", err)
	}

	history, err := ui.OpenHistory(p.Fs(), historyPath)
	if err != nil {
		log.Fatal(err)
	}

	app := ui.New(surface, bridge, history, refreshHz)
	if err := app.Run(p.Screen()); err != nil {
		log.Fatal(err)
	}
}

func loadImage(fs afero.Fs, m *machine.Machine, surface *control.Surface, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := poki.Read(f)
	if err != nil {
		return err
	}
	entry, err := img.MapInto(m)
	if err != nil {
		return err
	}
	surface.SetEntry(entry)
	surface.SetProgramCounter(entry)
	return nil
}

func armBreakpoints(surface *control.Surface, list string) error {
	if list == "" {
		return nil
	}
	for _, s := range strings.Split(list, ",") {
		addr, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
		if err != nil {
			return err
		}
		surface.AddBreakpoint(uint16(addr))
	}
	return nil
}
