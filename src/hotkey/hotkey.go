// Package hotkey triggers a callback when a global key combination is pressed.
package hotkey

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Key is one element of a combination and the virtual-key codes that satisfy
// it (left and right variants for modifiers).
type Key struct {
	Name     string
	Rawcodes []uint16
}

type Combo []Key

func (c Combo) String() string {
	names := make([]string, len(c))
	for i, k := range c {
		names[i] = k.Name
	}
	return strings.Join(names, "+")
}

// Parse turns "Ctrl+Alt+T" into a Combo. Every part must map to a key.
func Parse(text string) (Combo, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty hotkey")
	}
	var combo Combo
	for _, part := range strings.Split(strings.ToLower(text), "+") {
		name := strings.TrimSpace(part)
		codes := Rawcodes(name)
		if len(codes) == 0 {
			return nil, fmt.Errorf("hotkey %q: unknown key %q", text, name)
		}
		combo = append(combo, Key{Name: canonical(name), Rawcodes: codes})
	}
	return combo, nil
}

func canonical(name string) string {
	switch name {
	case "win", "cmd", "super":
		return "win"
	case "return":
		return "enter"
	case "escape":
		return "esc"
	}
	return name
}

var named = map[string][]uint16{
	"ctrl":  {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":   {164, 165}, // VK_LMENU, VK_RMENU
	"shift": {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"win":   {91, 92},
	"cmd":   {91, 92},
	"super": {91, 92},

	"space":     {32},
	"enter":     {13},
	"return":    {13},
	"esc":       {27},
	"escape":    {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"del":       {46},
	"insert":    {45},
	"ins":       {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pgup":      {33},
	"pagedown":  {34},
	"pgdn":      {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

// Rawcodes maps a key name to its Windows virtual-key codes, or nil.
func Rawcodes(name string) []uint16 {
	name = strings.ToLower(strings.TrimSpace(name))
	if codes, ok := named[name]; ok {
		return codes
	}
	if len(name) == 1 {
		switch c := name[0]; {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 0x41}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c-'0') + 0x30}
		}
	}
	var n int
	if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && n >= 1 && n <= 24 && name == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(0x70 + n - 1)} // VK_F1..VK_F24
	}
	return nil
}

// Matcher tracks key state for one combo.
type Matcher struct {
	mu      sync.Mutex
	combo   Combo
	pressed []bool
}

func NewMatcher(c Combo) *Matcher {
	return &Matcher{combo: c, pressed: make([]bool, len(c))}
}

// KeyDown records a press and reports whether the whole combo is now held.
// A match resets the state so holding the keys fires once.
func (m *Matcher) KeyDown(raw uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(raw, true)
	for _, p := range m.pressed {
		if !p {
			return false
		}
	}
	for i := range m.pressed {
		m.pressed[i] = false
	}
	return true
}

func (m *Matcher) KeyUp(raw uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(raw, false)
}

func (m *Matcher) set(raw uint16, v bool) {
	for i, k := range m.combo {
		for _, c := range k.Rawcodes {
			if c == raw {
				m.pressed[i] = v
			}
		}
	}
}

// Listen hooks the keyboard until ctx ends and calls callback on every match.
func Listen(ctx context.Context, text string, callback func()) error {
	combo, err := Parse(text)
	if err != nil {
		return err
	}
	m := NewMatcher(combo)
	log.Printf("Hotkey listener configured for: %s", combo)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		evChan := gohook.Start()
		if evChan == nil {
			log.Printf("ERROR: gohook.Start() returned nil channel")
			return
		}
		defer gohook.End()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-evChan:
				if !ok {
					log.Printf("Hotkey: event channel closed")
					return
				}
				switch ev.Kind {
				case gohook.KeyDown:
					if m.KeyDown(ev.Rawcode) {
						log.Printf("Hotkey: %s pressed", combo)
						if callback != nil {
							callback()
						}
					}
				case gohook.KeyUp:
					m.KeyUp(ev.Rawcode)
				}
			}
		}
	}()
	return nil
}
