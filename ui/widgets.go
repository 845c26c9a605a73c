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

package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell"

	"github.com/lawa-emu/sama/emulator/machine"
	"github.com/lawa-emu/sama/script"
)

const (
	widgetRAM       = "ram"
	widgetRegisters = "registers"
	widgetCSRs      = "control_status_registers"

	// Width of the right-hand register column, borders included.
	sideWidth = 20

	// Rows reserved for the prompt at the bottom of the screen.
	promptHeight = 3
)

// applyStyle lays a script override over a widget's base style.
// Absent colors and false attributes keep the base.
func applyStyle(base tcell.Style, s script.Style) tcell.Style {
	st := base
	if s.FG != nil {
		st = st.Foreground(tcell.NewRGBColor(int32(s.FG.R), int32(s.FG.G), int32(s.FG.B)))
	}
	if s.BG != nil {
		st = st.Background(tcell.NewRGBColor(int32(s.BG.R), int32(s.BG.G), int32(s.BG.B)))
	}
	if s.Bold {
		st = st.Bold(true)
	}
	if s.Dim {
		st = st.Dim(true)
	}
	if s.Italic {
		st = st.Italic(true)
	}
	if s.Underlined {
		st = st.Underline(true)
	}
	if s.Blink {
		st = st.Blink(true)
	}
	if s.Reversed {
		st = st.Reverse(true)
	}
	return st
}

func (a *App) cellStyle(widget string, cell int) tcell.Style {
	if s, ok := a.bridge.WidgetStyle(widget, cell); ok {
		return applyStyle(tcell.StyleDefault, s)
	}
	return tcell.StyleDefault
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, r := range text {
		s.SetContent(x+i, y, r, nil, style)
	}
}

func drawBox(s tcell.Screen, x, y, w, h int, title string) {
	if w < 2 || h < 2 {
		return
	}
	st := tcell.StyleDefault
	for i := x + 1; i < x+w-1; i++ {
		s.SetContent(i, y, tcell.RuneHLine, nil, st)
		s.SetContent(i, y+h-1, tcell.RuneHLine, nil, st)
	}
	for j := y + 1; j < y+h-1; j++ {
		s.SetContent(x, j, tcell.RuneVLine, nil, st)
		s.SetContent(x+w-1, j, tcell.RuneVLine, nil, st)
	}
	s.SetContent(x, y, tcell.RuneULCorner, nil, st)
	s.SetContent(x+w-1, y, tcell.RuneURCorner, nil, st)
	s.SetContent(x, y+h-1, tcell.RuneLLCorner, nil, st)
	s.SetContent(x+w-1, y+h-1, tcell.RuneLRCorner, nil, st)
	if len(title)+4 < w {
		drawText(s, x+2, y, st, " "+title+" ")
	}
}

// drawRAM renders the word grid. Each row starts with its address,
// then as many words as fit. The style function runs once per visible
// word with the word's address.
func (a *App) drawRAM(x, y, w, h int) {
	drawBox(a.screen, x, y, w, h, widgetRAM)

	innerW, innerH := w-2, h-2
	perRow := (innerW - 6) / 5
	if perRow < 1 {
		perRow = 1
	}

	offset := a.bridge.WidgetInt(widgetRAM, "view_offset", 0)
	addr := uint16(offset)
	for row := 0; row < innerH; row++ {
		drawText(a.screen, x+1, y+1+row, tcell.StyleDefault, fmt.Sprintf("%04x:", addr))
		for col := 0; col < perRow; col++ {
			st := a.cellStyle(widgetRAM, int(addr))
			text := fmt.Sprintf("%04x", a.surface.ReadWord(addr))
			drawText(a.screen, x+1+6+col*5, y+1+row, st, text)
			addr++
			if addr == 0 { // wrapped past the top of memory
				return
			}
		}
	}
}

// drawRegisters renders one labeled row per visible register. The
// widget name selects which bank is shown and how labels resolve.
func (a *App) drawRegisters(widget string, x, y, w, h int) {
	drawBox(a.screen, x, y, w, h, shortTitle(widget))

	mask := uint32(a.bridge.WidgetInt(widget, "visibility_bitmask", -1))
	row := 0
	for i := uint16(0); i < machine.NumRegisters && row < h-2; i++ {
		if mask&(1<<i) == 0 {
			continue
		}

		var value uint16
		var err error
		if widget == widgetCSRs {
			value, err = a.surface.ReadCSR(i)
		} else {
			value, err = a.surface.ReadRegister(i)
		}
		if err != nil {
			continue
		}

		label := registerLabel(widget, i)
		if alias, ok := a.bridge.WidgetAlias(widget, int(i)); ok {
			label = alias
		}

		st := a.cellStyle(widget, int(i))
		drawText(a.screen, x+2, y+1+row, st, fmt.Sprintf("%-5s 0x%04x", label, value))
		row++
	}
}

func registerLabel(widget string, index uint16) string {
	if widget == widgetCSRs {
		return machine.CSRName(index)
	}
	return fmt.Sprintf("r%d", index)
}

func shortTitle(widget string) string {
	if widget == widgetCSRs {
		return "csr"
	}
	return widget
}

// drawPrompt renders the status line, the last evaluation result and
// the input line with a cursor.
func (a *App) drawPrompt(x, y, w int) {
	status := a.bridge.StatusString()
	drawText(a.screen, x, y, tcell.StyleDefault.Reverse(true), pad(status, w))
	drawText(a.screen, x, y+1, tcell.StyleDefault, pad(a.output, w))

	line := "> " + string(a.input)
	drawText(a.screen, x, y+2, tcell.StyleDefault, pad(line, w))
	a.screen.ShowCursor(x+len([]rune(line)), y+2)
}

// pad fits s to exactly w cells, counting runes rather than bytes so
// multibyte output neither misaligns the line nor gets cut mid-rune.
func pad(s string, w int) string {
	r := []rune(s)
	if len(r) > w {
		return string(r[:w])
	}
	return s + strings.Repeat(" ", w-len(r))
}

// draw lays out all widgets for the current screen size and flushes.
func (a *App) draw() {
	a.screen.Clear()
	w, h := a.screen.Size()

	body := h - promptHeight
	if body > 2 && w > sideWidth+4 {
		a.drawRAM(0, 0, w-sideWidth, body)

		regH := body / 2
		a.drawRegisters(widgetRegisters, w-sideWidth, 0, sideWidth, regH)
		a.drawRegisters(widgetCSRs, w-sideWidth, regH, sideWidth, body-regH)
	}
	a.drawPrompt(0, h-promptHeight, w)
	a.screen.Show()
}
