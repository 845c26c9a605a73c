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

// Package script embeds the Lua runtime that drives the emulator's
// configuration, styling and REPL. It binds two globals before any
// user code runs: `emulator`, a handle onto the control surface, and
// `widgets`, the rendering configuration table.
//
// The bridge is owned by the event loop goroutine and is not safe for
// concurrent use; the control surface it forwards to does its own
// locking.
package script

import (
	_ "embed"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/afero"
	lua "github.com/yuin/gopher-lua"

	"github.com/lawa-emu/sama/emulator/control"
)

//go:embed init.lua
var defaultConfig string

const (
	emulatorTypeName  = "emulator"
	ramTypeName       = "emulator.ram"
	registersTypeName = "emulator.registers"
	csrTypeName       = "emulator.control_status_registers"
)

type Bridge struct {
	surface    *control.Surface
	fs         afero.Fs
	configPath string

	state         *lua.LState
	reloadPending bool
	runInterrupt  func() bool
}

// SetRunInterrupt installs the callback a script-initiated run polls
// at instruction boundaries. The event loop installs its input poll
// here at startup so that emulator:run() stays interruptible by a
// keypress, like a run started from the keyboard.
func (b *Bridge) SetRunInterrupt(f func() bool) {
	b.runInterrupt = f
}

// New builds a bridge with the built-in widget configuration active.
// The embedded defaults are trusted; failing to execute them is a
// programming error.
func New(surface *control.Surface, fs afero.Fs, configPath string) *Bridge {
	b := &Bridge{surface: surface, fs: fs, configPath: configPath}
	L, err := b.newEnvironment()
	if err != nil {
		panic(fmt.Sprintf("script: embedded configuration is broken: %v", err))
	}
	b.state = L
	return b
}

func (b *Bridge) Close() {
	if b.state != nil {
		b.state.Close()
		b.state = nil
	}
}

// newEnvironment builds a fresh Lua state with the emulator and widget
// globals bound and the embedded defaults executed.
func (b *Bridge) newEnvironment() (*lua.LState, error) {
	L := lua.NewState()

	b.registerEmulatorType(L)
	L.SetGlobal("reload_configuration", L.NewFunction(func(L *lua.LState) int {
		b.reloadPending = true
		return 0
	}))
	L.SetGlobal("print", L.NewFunction(luaPrint))

	if err := L.DoString(defaultConfig); err != nil {
		L.Close()
		return nil, err
	}
	return L, nil
}

// Reload executes the user's configuration source in a fresh
// environment. The previous environment, and with it the active widget
// mapping, stays in force unless the whole file executes without
// error. A missing configuration file simply leaves the defaults
// active.
func (b *Bridge) Reload() error {
	L, err := b.newEnvironment()
	if err != nil {
		return err
	}

	if b.configPath != "" {
		src, err := afero.ReadFile(b.fs, b.configPath)
		if err == nil {
			if err := L.DoString(string(src)); err != nil {
				L.Close()
				return fmt.Errorf("configuration error: %w", err)
			}
		}
	}

	old := b.state
	b.state = L
	if old != nil {
		old.Close()
	}
	b.reloadPending = false
	return nil
}

// ReloadIfRequested performs a reload when the script called
// reload_configuration(). The swap is deferred to here so that the
// environment is never torn down while the event loop is still
// executing inside it.
func (b *Bridge) ReloadIfRequested() (bool, error) {
	if !b.reloadPending {
		return false, nil
	}
	b.reloadPending = false
	return true, b.Reload()
}

// Eval evaluates REPL input. Input that parses as an expression is
// evaluated as one and its results are returned tab-separated;
// anything else runs as a statement.
func (b *Bridge) Eval(src string) (string, error) {
	L := b.state

	if fn, err := L.LoadString("return " + src); err == nil {
		base := L.GetTop()
		L.Push(fn)
		if err := L.PCall(0, lua.MultRet, nil); err != nil {
			return "", err
		}
		var parts []string
		for i := base + 1; i <= L.GetTop(); i++ {
			parts = append(parts, formatValue(L.Get(i)))
		}
		L.SetTop(base)
		return strings.Join(parts, "\t"), nil
	}

	if err := L.DoString(src); err != nil {
		return "", err
	}
	return "", nil
}

func formatValue(v lua.LValue) string {
	switch v.Type() {
	case lua.LTNumber:
		n := float64(v.(lua.LNumber))
		if n == float64(int64(n)) && n >= 0 && n <= 0xFFFF {
			return fmt.Sprintf("0x%04x", int64(n))
		}
		return v.String()
	default:
		return v.String()
	}
}

func luaPrint(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	log.Print(strings.Join(parts, "\t"))
	return 0
}

// WidgetField returns widgets.<widget>.<field>, or nil if the path
// does not resolve to anything.
func (b *Bridge) WidgetField(widget, field string) lua.LValue {
	ws, ok := b.state.GetGlobal("widgets").(*lua.LTable)
	if !ok {
		return lua.LNil
	}
	entry, ok := ws.RawGetString(widget).(*lua.LTable)
	if !ok {
		return lua.LNil
	}
	return entry.RawGetString(field)
}

// WidgetInt reads a numeric widget field with a fallback.
func (b *Bridge) WidgetInt(widget, field string, fallback int) int {
	if n, ok := b.WidgetField(widget, field).(lua.LNumber); ok {
		return int(n)
	}
	return fallback
}

// WidgetAlias returns widgets.<widget>.aliases[index], if set.
func (b *Bridge) WidgetAlias(widget string, index int) (string, bool) {
	aliases, ok := b.WidgetField(widget, "aliases").(*lua.LTable)
	if !ok {
		return "", false
	}
	if s, ok := aliases.RawGetInt(index).(lua.LString); ok {
		return string(s), true
	}
	return "", false
}

// WidgetStyle invokes the widget's style function with the cell's
// context value (an address or a register index) and converts the
// result. The second return is false when no usable style came back;
// the caller falls back to the widget's default. A failing style
// function must not take down the refresh, so errors only disable the
// override for that cell.
func (b *Bridge) WidgetStyle(widget string, cell int) (Style, bool) {
	fn, ok := b.WidgetField(widget, "style").(*lua.LFunction)
	if !ok {
		return Style{}, false
	}

	L := b.state
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LNumber(cell)); err != nil {
		return Style{}, false
	}
	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return Style{}, false
	}
	return styleFromTable(tbl), true
}

func (b *Bridge) registerEmulatorType(L *lua.LState) {
	newHandle := func(typeName string) *lua.LUserData {
		ud := L.NewUserData()
		ud.Value = b.surface
		L.SetMetatable(ud, L.GetTypeMetatable(typeName))
		return ud
	}

	mt := L.NewTypeMetatable(ramTypeName)
	L.SetField(mt, "__index", L.NewFunction(b.ramIndex))
	L.SetField(mt, "__newindex", L.NewFunction(b.ramNewIndex))

	mt = L.NewTypeMetatable(registersTypeName)
	L.SetField(mt, "__index", L.NewFunction(b.registersIndex))
	L.SetField(mt, "__newindex", L.NewFunction(b.registersNewIndex))

	mt = L.NewTypeMetatable(csrTypeName)
	L.SetField(mt, "__index", L.NewFunction(b.csrIndex))
	L.SetField(mt, "__newindex", L.NewFunction(b.csrNewIndex))

	ram := newHandle(ramTypeName)
	registers := newHandle(registersTypeName)
	csrs := newHandle(csrTypeName)

	mt = L.NewTypeMetatable(emulatorTypeName)
	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		switch key := L.CheckString(2); key {
		case "program_counter":
			L.Push(lua.LNumber(b.surface.ProgramCounter()))
		case "state":
			L.Push(lua.LString(b.surface.Status().String()))
		case "privileged":
			L.Push(lua.LBool(b.surface.Privileged()))
		case "ram":
			L.Push(ram)
		case "registers":
			L.Push(registers)
		case "control_status_registers":
			L.Push(csrs)
		case "step":
			L.Push(L.NewFunction(b.emulatorStep))
		case "run":
			L.Push(L.NewFunction(b.emulatorRun))
		case "halt":
			L.Push(L.NewFunction(b.emulatorHalt))
		case "reset":
			L.Push(L.NewFunction(b.emulatorReset))
		case "add_breakpoint":
			L.Push(L.NewFunction(b.emulatorAddBreakpoint))
		case "remove_breakpoint":
			L.Push(L.NewFunction(b.emulatorRemoveBreakpoint))
		case "breakpoints":
			L.Push(L.NewFunction(b.emulatorBreakpoints))
		default:
			L.Push(lua.LNil)
		}
		return 1
	}))
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		switch key := L.CheckString(2); key {
		case "program_counter":
			b.surface.SetProgramCounter(checkWord(L, 3))
		default:
			L.RaiseError("cannot set emulator.%s", key)
		}
		return 0
	}))

	L.SetGlobal("emulator", newHandle(emulatorTypeName))
}

// checkWord fetches an argument that must fit in a 16-bit word.
func checkWord(L *lua.LState, n int) uint16 {
	v := L.CheckInt(n)
	if v < 0 || v > 0xFFFF {
		L.ArgError(n, fmt.Sprintf("%d does not fit in 16 bits", v))
	}
	return uint16(v)
}

func (b *Bridge) ramIndex(L *lua.LState) int {
	L.Push(lua.LNumber(b.surface.ReadWord(checkWord(L, 2))))
	return 1
}

func (b *Bridge) ramNewIndex(L *lua.LState) int {
	b.surface.WriteWord(checkWord(L, 2), checkWord(L, 3))
	return 0
}

func (b *Bridge) registersIndex(L *lua.LState) int {
	v, err := b.surface.ReadRegister(checkWord(L, 2))
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (b *Bridge) registersNewIndex(L *lua.LState) int {
	if err := b.surface.WriteRegister(checkWord(L, 2), checkWord(L, 3)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (b *Bridge) csrIndex(L *lua.LState) int {
	v, err := b.surface.ReadCSR(checkWord(L, 2))
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (b *Bridge) csrNewIndex(L *lua.LState) int {
	if err := b.surface.WriteCSR(checkWord(L, 2), checkWord(L, 3)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (b *Bridge) emulatorStep(L *lua.LState) int {
	L.Push(lua.LString(b.surface.Step().String()))
	return 1
}

func (b *Bridge) emulatorRun(L *lua.LState) int {
	st, reason := b.surface.Run(b.runInterrupt)
	L.Push(lua.LString(st.String()))
	L.Push(lua.LString(reason.String()))
	return 2
}

func (b *Bridge) emulatorHalt(L *lua.LState) int {
	b.surface.Halt()
	return 0
}

func (b *Bridge) emulatorReset(L *lua.LState) int {
	b.surface.Reset()
	return 0
}

func (b *Bridge) emulatorAddBreakpoint(L *lua.LState) int {
	b.surface.AddBreakpoint(checkWord(L, 2))
	return 0
}

func (b *Bridge) emulatorRemoveBreakpoint(L *lua.LState) int {
	b.surface.RemoveBreakpoint(checkWord(L, 2))
	return 0
}

func (b *Bridge) emulatorBreakpoints(L *lua.LState) int {
	tbl := L.NewTable()
	for i, addr := range b.surface.Breakpoints() {
		tbl.RawSetInt(i+1, lua.LNumber(addr))
	}
	L.Push(tbl)
	return 1
}

// StatusString reports the machine status for the prompt widget.
func (b *Bridge) StatusString() string {
	return b.surface.Status().String()
}
