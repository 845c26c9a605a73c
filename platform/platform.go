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

// Package platform owns the terminal screen and the filesystem the
// rest of the program goes through. The real platform talks to the
// controlling terminal via tcell; the simulation platform backs both
// with in-memory fakes so the interface layer can be tested headless.
package platform

import (
	"github.com/gdamore/tcell"
	"github.com/spf13/afero"
)

type internalPlatform interface{}

// Config is a functional option applied before the platform starts.
type Config func(internalPlatform) error

// Platform is what the main loop runs against.
type Platform interface {
	Screen() tcell.Screen
	Fs() afero.Fs
}

// Instance is the active platform, set by Start.
var Instance Platform
