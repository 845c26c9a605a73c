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

// Package ui renders the machine into a terminal and runs the event
// loop that ties keys, the prompt and the scripting bridge together.
package ui

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell"

	"github.com/lawa-emu/sama/emulator/control"
	"github.com/lawa-emu/sama/script"
)

const DefaultRefreshHz = 30

type App struct {
	surface *control.Surface
	bridge  *script.Bridge
	history *History

	screen  tcell.Screen
	refresh time.Duration
	ticker  *time.Ticker
	events  chan tcell.Event

	input  []rune
	output string
	quit   bool
}

func New(surface *control.Surface, bridge *script.Bridge, history *History, refreshHz int) *App {
	if refreshHz <= 0 {
		refreshHz = DefaultRefreshHz
	}
	return &App{
		surface: surface,
		bridge:  bridge,
		history: history,
		refresh: time.Second / time.Duration(refreshHz),
	}
}

// Run owns the screen until the operator quits. Everything that
// touches the machine or the bridge happens on this goroutine; the
// only other goroutine forwards tcell events into a channel so the
// loop can also wake on the refresh tick.
func (a *App) Run(screen tcell.Screen) error {
	a.screen = screen
	a.events = make(chan tcell.Event, 16)
	a.ticker = time.NewTicker(a.refresh)
	defer a.ticker.Stop()

	// Anything the bridge or a script logs lands in the prompt's
	// output line instead of corrupting the terminal.
	log.SetOutput(promptWriter{a})
	defer log.SetOutput(os.Stderr)

	// A run started from the REPL polls the same input as Ctrl-R.
	a.bridge.SetRunInterrupt(a.pollInterrupt)

	go func() {
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				close(a.events)
				return
			}
			a.events <- ev
		}
	}()

	a.draw()
	for !a.quit {
		select {
		case ev, ok := <-a.events:
			if !ok {
				return nil
			}
			a.handleEvent(ev)
			a.draw()
		case <-a.ticker.C:
			a.draw()
		}
	}
	return nil
}

func (a *App) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		a.screen.Sync()
	case *tcell.EventKey:
		a.handleKey(ev)
	}
}

func (a *App) handleKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		a.quit = true
	case tcell.KeyEnter:
		a.evaluate()
	case tcell.KeyUp, tcell.KeyCtrlP:
		if s, ok := a.history.Up(string(a.input)); ok {
			a.input = []rune(s)
		}
	case tcell.KeyDown, tcell.KeyCtrlN:
		if s, ok := a.history.Down(string(a.input)); ok {
			a.input = []rune(s)
		}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(a.input) > 0 {
			a.input = a.input[:len(a.input)-1]
		}
	case tcell.KeyCtrlU:
		a.input = a.input[:0]
	case tcell.KeyCtrlS:
		a.surface.Step()
		a.output = a.bridge.StatusString()
	case tcell.KeyCtrlR:
		a.runProgram()
	case tcell.KeyCtrlG:
		if err := a.bridge.Reload(); err != nil {
			a.output = err.Error()
		} else {
			a.output = "configuration reloaded"
		}
	case tcell.KeyRune:
		a.input = append(a.input, ev.Rune())
	}
}

func (a *App) evaluate() {
	line := strings.TrimSpace(string(a.input))
	a.input = a.input[:0]
	if line == "" {
		return
	}
	if err := a.history.Append(line); err != nil {
		log.Print("history: ", err)
	}

	out, err := a.bridge.Eval(line)
	if err != nil {
		a.output = err.Error()
	} else {
		a.output = out
	}
	if reloaded, err := a.bridge.ReloadIfRequested(); err != nil {
		a.output = err.Error()
	} else if reloaded {
		a.output = "configuration reloaded"
	}
}

// pollInterrupt is the cooperative stop check for long runs, called at
// instruction boundaries with no surface lock held. Any keypress stops
// the run; resizes and the refresh tick are serviced in place so the
// screen stays live while the program executes.
func (a *App) pollInterrupt() bool {
	select {
	case ev, ok := <-a.events:
		if !ok {
			return true
		}
		switch ev.(type) {
		case *tcell.EventKey:
			return true
		case *tcell.EventResize:
			a.screen.Sync()
		}
	case <-a.ticker.C:
		a.draw()
	default:
	}
	return false
}

// runProgram resumes execution until the machine stops on its own,
// hits a breakpoint or the operator presses a key.
func (a *App) runProgram() {
	status, reason := a.surface.Run(a.pollInterrupt)

	switch reason {
	case control.StopBreakpoint:
		a.output = fmt.Sprintf("breakpoint at 0x%04x", a.surface.ProgramCounter())
	case control.StopInterrupt:
		a.output = "interrupted"
	default:
		a.output = status.String()
	}
}

// promptWriter routes log output into the prompt's output line.
type promptWriter struct {
	a *App
}

func (w promptWriter) Write(p []byte) (int, error) {
	w.a.output = strings.TrimRight(string(p), "\n")
	return len(p), nil
}
