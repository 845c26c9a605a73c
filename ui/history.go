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
	"os"
	"strings"

	"github.com/spf13/afero"
)

// History is the prompt's recall buffer, persisted line by line to a
// file. Recalled entries are never modified in place: editing one
// forks the edited text into the live input at the bottom of the
// list.
type History struct {
	fs   afero.Fs
	path string

	lines  []string
	cursor int    // len(lines) means the live input line
	stash  string // live input saved while walking the list
}

// OpenHistory loads the history file, creating the recall buffer even
// when the file does not exist yet.
func OpenHistory(fs afero.Fs, path string) (*History, error) {
	h := &History{fs: fs, path: path}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			h.lines = append(h.lines, line)
		}
	}
	h.cursor = len(h.lines)
	return h, nil
}

// Append records an evaluated line and resets recall to the bottom.
// Empty lines and immediate repeats are not recorded.
func (h *History) Append(line string) error {
	defer func() {
		h.cursor = len(h.lines)
		h.stash = ""
	}()

	if line == "" {
		return nil
	}
	if n := len(h.lines); n > 0 && h.lines[n-1] == line {
		return nil
	}
	h.lines = append(h.lines, line)

	f, err := h.fs.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// Up recalls the previous entry. current is whatever is in the prompt
// right now; if it is an edited recall it becomes the new live input.
func (h *History) Up(current string) (string, bool) {
	h.forkIfEdited(current)
	if h.cursor == len(h.lines) {
		h.stash = current
	}
	if h.cursor == 0 {
		return "", false
	}
	h.cursor--
	return h.lines[h.cursor], true
}

// Down walks back toward the live input line.
func (h *History) Down(current string) (string, bool) {
	h.forkIfEdited(current)
	if h.cursor >= len(h.lines) {
		return "", false
	}
	h.cursor++
	if h.cursor == len(h.lines) {
		return h.stash, true
	}
	return h.lines[h.cursor], true
}

func (h *History) forkIfEdited(current string) {
	if h.cursor < len(h.lines) && current != h.lines[h.cursor] {
		h.stash = current
		h.cursor = len(h.lines)
	}
}
