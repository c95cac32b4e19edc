package block

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxel-world/internal/vec"
)

// catalogFile формат YAML-каталога блоков:
//
//	blocks:
//	  - id: 0
//	    name: air
//	  - id: 1
//	    name: stone
//	    solid: true
//	    collision: cube
type catalogFile struct {
	Blocks []catalogEntry `yaml:"blocks"`
}

type catalogEntry struct {
	ID        uint16   `yaml:"id"`
	Name      string   `yaml:"name"`
	Solid     bool     `yaml:"solid"`
	Faces     []string `yaml:"faces"`     // пусто = все грани
	Collision string   `yaml:"collision"` // none | cube | custom
	ShapeID   uint16   `yaml:"shape_id"`
}

var faceNames = map[string]vec.Direction{
	"-x": vec.NegX, "+x": vec.PosX,
	"-y": vec.NegY, "+y": vec.PosY,
	"-z": vec.NegZ, "+z": vec.PosZ,
}

// LoadRegistry читает YAML-каталог блоков с диска
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

// ParseRegistry строит реестр из YAML
func ParseRegistry(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора каталога блоков: %w", err)
	}

	defs := make([]Properties, 0, len(file.Blocks))
	for _, e := range file.Blocks {
		p := Properties{ID: BlockID(e.ID), Name: e.Name, Solid: e.Solid}

		if len(e.Faces) == 0 {
			p.Faces = AllFaces
		}
		for _, f := range e.Faces {
			dir, ok := faceNames[f]
			if !ok {
				return nil, fmt.Errorf("%w: блок %d: неизвестная грань %q", ErrInvalidRegistry, e.ID, f)
			}
			p.Faces |= FacesOf(dir)
		}

		switch e.Collision {
		case "", "none":
			p.Collision = CollisionShape{Kind: ShapeNone}
		case "cube":
			p.Collision = CollisionShape{Kind: ShapeFullCube}
		case "custom":
			p.Collision = CollisionShape{Kind: ShapeCustom, ShapeID: e.ShapeID}
		default:
			return nil, fmt.Errorf("%w: блок %d: неизвестная форма коллизии %q", ErrInvalidRegistry, e.ID, e.Collision)
		}

		defs = append(defs, p)
	}

	return NewRegistry(defs)
}
