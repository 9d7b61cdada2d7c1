package world

import (
	"fmt"
	"strings"
)

// Material identifies the block type at a position.
type Material uint8

const (
	Air Material = iota
	Stone
	Dirt
	Grass
	Sand
	Water
	Lava
	Ladder
	Vine
	Fence
	DoorClosed
	DoorOpen
	Slab
	Leaves
	Glass
	// Unknown is reported for positions whose data is not available (outside a
	// snapshot or outside the world's Y bounds). It collides like a full block.
	Unknown
)

type materialInfo struct {
	name      string
	collides  bool
	height    float64
	liquid    bool
	climbable bool
	door      bool
}

var materials = [...]materialInfo{
	Air:        {name: "air"},
	Stone:      {name: "stone", collides: true, height: 1},
	Dirt:       {name: "dirt", collides: true, height: 1},
	Grass:      {name: "grass", collides: true, height: 1},
	Sand:       {name: "sand", collides: true, height: 1},
	Water:      {name: "water", liquid: true},
	Lava:       {name: "lava", liquid: true},
	Ladder:     {name: "ladder", climbable: true},
	Vine:       {name: "vine", climbable: true},
	Fence:      {name: "fence", collides: true, height: 1.5},
	DoorClosed: {name: "door_closed", collides: true, height: 2, door: true},
	DoorOpen:   {name: "door_open", door: true},
	Slab:       {name: "slab", collides: true, height: 0.5},
	Leaves:     {name: "leaves", collides: true, height: 1},
	Glass:      {name: "glass", collides: true, height: 1},
	Unknown:    {name: "unknown", collides: true, height: 1},
}

func (m Material) info() materialInfo {
	if int(m) >= len(materials) {
		return materials[Unknown]
	}
	return materials[m]
}

func (m Material) String() string { return m.info().name }

// Collides reports whether the block has collision geometry.
func (m Material) Collides() bool { return m.info().collides }

// CollisionHeight is the height of the block's collision box (0 for none).
func (m Material) CollisionHeight() float64 { return m.info().height }

// Liquid reports water-like blocks.
func (m Material) Liquid() bool { return m.info().liquid }

// Climbable reports ladder-like blocks.
func (m Material) Climbable() bool { return m.info().climbable }

// Door reports door blocks, open or closed.
func (m Material) Door() bool { return m.info().door }

// ParseMaterial maps a material name (case-insensitive) to a Material.
func ParseMaterial(name string) (Material, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, info := range materials {
		if info.name == name {
			return Material(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown material %q", name)
}

// UnmarshalText lets materials appear by name in YAML and JSON documents.
func (m *Material) UnmarshalText(text []byte) error {
	v, err := ParseMaterial(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MarshalText encodes the material name.
func (m Material) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
