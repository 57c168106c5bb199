// Package platform maps the running environment to the OS tag, shared
// library suffix, and registry entry key used throughout orbit.
package platform

import "runtime"

// OS identifies the host operating system family.
type OS int

const (
	Linux OS = iota
	Windows
	MacOS
	Unknown
)

// Detect returns the OS family of the running process. An unrecognized
// GOOS degrades to Unknown, whose derived values are Linux-like so that
// binary-agnostic modules stay installable.
func Detect() OS {
	switch runtime.GOOS {
	case "linux":
		return Linux
	case "windows":
		return Windows
	case "darwin":
		return MacOS
	default:
		return Unknown
	}
}

func (o OS) String() string {
	switch o {
	case Linux:
		return "Linux"
	case Windows:
		return "Windows"
	case MacOS:
		return "macOS"
	default:
		return "Unknown"
	}
}

// LibraryExtension returns the shared-library file suffix for o.
func (o OS) LibraryExtension() string {
	switch o {
	case Windows:
		return ".dll"
	case MacOS:
		return ".dylib"
	default:
		return ".so"
	}
}

// Key returns the per-platform binary key used in version metadata.
func (o OS) Key() string {
	switch o {
	case Windows:
		return "entry-win"
	case MacOS:
		return "entry-mac"
	default:
		return "entry-linux"
	}
}
