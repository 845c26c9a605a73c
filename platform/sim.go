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

package platform

import (
	"github.com/gdamore/tcell"
	"github.com/spf13/afero"
)

type simPlatform struct {
	screen tcell.SimulationScreen
	fs     afero.Fs
}

// StartSimulation is the headless counterpart of Start. It drives the
// main loop against a tcell simulation screen and an in-memory
// filesystem, and returns the screen so a test can inject events and
// inspect cells.
func StartSimulation(mainLoop func(Platform), configs ...Config) (tcell.SimulationScreen, error) {
	p := &simPlatform{
		screen: tcell.NewSimulationScreen("UTF-8"),
		fs:     afero.NewMemMapFs(),
	}
	for _, cfg := range configs {
		if err := cfg(p); err != nil {
			return nil, err
		}
	}
	if err := p.screen.Init(); err != nil {
		return nil, err
	}
	defer p.screen.Fini()

	Instance = p
	mainLoop(p)
	return p.screen, nil
}

func (p *simPlatform) Screen() tcell.Screen {
	return p.screen
}

func (p *simPlatform) Fs() afero.Fs {
	return p.fs
}
