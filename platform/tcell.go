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
	"log"

	"github.com/gdamore/tcell"
	"github.com/spf13/afero"
)

type tcellPlatform struct {
	screen tcell.Screen
	fs     afero.Fs
}

var tcellPlatformInstance tcellPlatform

// Start initializes the terminal, runs mainLoop against it and
// restores the terminal when the loop returns. Errors during setup
// are fatal since there is nothing to fall back to.
func Start(mainLoop func(Platform), configs ...Config) {
	for _, cfg := range configs {
		if err := cfg(&tcellPlatformInstance); err != nil {
			log.Fatal(err)
		}
	}

	tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)

	var err error
	if tcellPlatformInstance.screen, err = tcell.NewScreen(); err != nil {
		log.Fatal(err)
	}
	if tcellPlatformInstance.fs == nil {
		tcellPlatformInstance.fs = afero.NewOsFs()
	}

	Instance = &tcellPlatformInstance
	s := tcellPlatformInstance.screen

	if err = s.Init(); err != nil {
		log.Fatal(err)
	}
	defer s.Fini()

	s.HideCursor()
	s.DisableMouse()
	s.Clear()

	mainLoop(Instance)
}

func (p *tcellPlatform) Screen() tcell.Screen {
	return p.screen
}

func (p *tcellPlatform) Fs() afero.Fs {
	return p.fs
}

// ConfigWithFs overrides the filesystem the platform hands out.
func ConfigWithFs(fs afero.Fs) Config {
	return func(i internalPlatform) error {
		switch p := i.(type) {
		case *tcellPlatform:
			p.fs = fs
		case *simPlatform:
			p.fs = fs
		}
		return nil
	}
}
