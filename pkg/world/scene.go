package world

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scene describes a MemoryWorld declaratively. Fills are applied in order, then
// single blocks, so later entries overwrite earlier ones.
//
//	world: overworld
//	min_y: 0
//	max_y: 128
//	fills:
//	  - material: grass
//	    from: [0, 63, 0]
//	    to: [63, 63, 63]
//	blocks:
//	  - material: ladder
//	    at: [10, 64, 10]
type Scene struct {
	World  string       `yaml:"world"`
	MinY   int          `yaml:"min_y"`
	MaxY   int          `yaml:"max_y"`
	Fills  []SceneFill  `yaml:"fills"`
	Blocks []SceneBlock `yaml:"blocks"`
}

// SceneFill sets every block of an inclusive box.
type SceneFill struct {
	Material Material `yaml:"material"`
	From     [3]int   `yaml:"from"`
	To       [3]int   `yaml:"to"`
}

// SceneBlock sets a single block.
type SceneBlock struct {
	Material Material `yaml:"material"`
	At       [3]int   `yaml:"at"`
}

// Build creates the world the scene describes.
func (s Scene) Build() (*MemoryWorld, error) {
	if s.World == "" {
		s.World = "world"
	}
	if s.MaxY <= s.MinY {
		return nil, fmt.Errorf("scene %q: max_y (%d) must be greater than min_y (%d)", s.World, s.MaxY, s.MinY)
	}
	w := NewMemoryWorld(s.World, s.MinY, s.MaxY)
	for _, f := range s.Fills {
		w.Fill(Pos(f.From[0], f.From[1], f.From[2]), Pos(f.To[0], f.To[1], f.To[2]), f.Material)
	}
	for _, b := range s.Blocks {
		if err := w.SetBlock(Pos(b.At[0], b.At[1], b.At[2]), b.Material); err != nil {
			return nil, fmt.Errorf("scene %q: %w", s.World, err)
		}
	}
	return w, nil
}

// ParseScene decodes a scene document. Unknown fields are rejected and
// ${VAR} references are expanded from the environment.
func ParseScene(r io.Reader) (Scene, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Scene{}, fmt.Errorf("read scene: %w", err)
	}
	var scene Scene
	decoder := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scene); err != nil {
		return Scene{}, fmt.Errorf("YAML syntax error in scene: %w", err)
	}
	return scene, nil
}

// LoadScene reads the scene file at path and builds its world.
func LoadScene(path string) (*MemoryWorld, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open scene file '%s': %w", path, err)
	}
	defer file.Close()

	scene, err := ParseScene(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scene.Build()
}

// FlatScene is a single grass floor at y = floorY covering [0, size) on X and Z.
func FlatScene(id string, size, floorY, maxY int) Scene {
	return Scene{
		World: id,
		MinY:  0,
		MaxY:  maxY,
		Fills: []SceneFill{{Material: Grass, From: [3]int{0, floorY, 0}, To: [3]int{size - 1, floorY, size - 1}}},
	}
}
