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

package script

import (
	lua "github.com/yuin/gopher-lua"
)

// RGB is a color triple of byte values.
type RGB struct {
	R, G, B byte
}

// Style is the override a style function returns for one cell. Nil
// colors and false attributes mean "keep the widget default".
type Style struct {
	FG, BG *RGB

	Bold       bool
	Dim        bool
	Italic     bool
	Underlined bool
	Blink      bool
	Reversed   bool
}

// styleFromTable converts the table contract of a style function:
// optional `fg`/`bg` tables with `r`/`g`/`b` byte fields, plus the
// boolean attribute flags. Omitted components default to white for fg
// and black for bg. Unknown fields are ignored.
func styleFromTable(tbl *lua.LTable) Style {
	var s Style
	s.FG = rgbFromValue(tbl.RawGetString("fg"), 0xFF)
	s.BG = rgbFromValue(tbl.RawGetString("bg"), 0x00)
	s.Bold = boolField(tbl, "bold")
	s.Dim = boolField(tbl, "dim")
	s.Italic = boolField(tbl, "italic")
	s.Underlined = boolField(tbl, "underlined")
	s.Blink = boolField(tbl, "blink")
	s.Reversed = boolField(tbl, "reversed")
	return s
}

func rgbFromValue(v lua.LValue, def byte) *RGB {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	return &RGB{
		R: byteField(tbl, "r", def),
		G: byteField(tbl, "g", def),
		B: byteField(tbl, "b", def),
	}
}

func byteField(tbl *lua.LTable, key string, def byte) byte {
	if n, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return byte(int64(n) & 0xFF)
	}
	return def
}

func boolField(tbl *lua.LTable, key string) bool {
	return lua.LVAsBool(tbl.RawGetString(key))
}
