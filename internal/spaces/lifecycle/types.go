package lifecycle

import "sort"

// SpaceType identifies the kind of development environment a space runs.
type SpaceType string

const (
	TypeCodeServer SpaceType = "code-server"
	TypeBlender    SpaceType = "blender"
	TypeKicad      SpaceType = "kicad"
)

// typeSpec pins the image, internal port, and credential behavior for a
// space type. GUI types get a generated credential embedded in the access
// URL; code-server takes a caller-chosen password delivered out-of-band.
type typeSpec struct {
	Image        string
	InternalPort int
	Description  string
	GUI          bool
}

var typeSpecs = map[SpaceType]typeSpec{
	TypeCodeServer: {
		Image:        "lscr.io/linuxserver/code-server:latest",
		InternalPort: 8443,
		Description:  "VS Code in the browser",
	},
	TypeBlender: {
		Image:        "lscr.io/linuxserver/blender:latest",
		InternalPort: 3000,
		Description:  "Blender 3D suite",
		GUI:          true,
	},
	TypeKicad: {
		Image:        "lscr.io/linuxserver/kicad:latest",
		InternalPort: 3001,
		Description:  "KiCad electronics design",
		GUI:          true,
	},
}

// ValidTypes returns the supported space types in stable order.
func ValidTypes() []string {
	types := make([]string, 0, len(typeSpecs))
	for t := range typeSpecs {
		types = append(types, string(t))
	}
	sort.Strings(types)
	return types
}

// specFor resolves a raw type string, reporting whether it is supported.
func specFor(raw string) (SpaceType, typeSpec, bool) {
	t := SpaceType(raw)
	spec, ok := typeSpecs[t]
	return t, spec, ok
}
