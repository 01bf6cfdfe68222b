package ui

import (
	"hash/fnv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var nameColors = []lipgloss.Color{
	"39", "45", "48", "82", "118", "154", "190", "214",
	"208", "203", "198", "171", "135", "99", "69", "226",
}

// Palette assigns each user name a stable color.
type Palette struct {
	colors map[string]lipgloss.Color
	mu     sync.Mutex
}

// NewPalette creates an empty Palette.
func NewPalette() *Palette {
	return &Palette{colors: make(map[string]lipgloss.Color)}
}

// Color returns the color for name, picking one on first use.
func (p *Palette) Color(name string) lipgloss.Color {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.colors[name]; ok {
		return c
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	c := nameColors[h.Sum32()%uint32(len(nameColors))]
	p.colors[name] = c
	return c
}

// Name renders name bold in its color.
func (p *Palette) Name(name string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(p.Color(name)).Render(name)
}

// Activity renders an activity line in the color of the user it starts with.
func (p *Palette) Activity(line string) string {
	name, _, _ := strings.Cut(line, " ")
	return lipgloss.NewStyle().Bold(true).Foreground(p.Color(name)).Render(line)
}
