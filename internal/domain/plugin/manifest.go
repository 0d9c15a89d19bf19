package plugin

import "time"

// Actor identifies who produced an archive.
type Actor struct {
	// Hostname is the machine name where packaging ran.
	Hostname string `yaml:"hostname"`
	// Username is the system user who ran the packager.
	Username string `yaml:"username"`
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Manifest is the sidecar document written next to an archive.
type Manifest struct {
	// BuildID uniquely identifies the packaging run.
	BuildID string `yaml:"build_id"`
	// Plugin is the name of the packaged plugin (the root directory name).
	Plugin string `yaml:"plugin"`
	// PluginVersion is taken from the plugin's own __version__ declaration, if any.
	PluginVersion string `yaml:"plugin_version,omitempty"`
	// PackagerVersion is the version of this tool.
	PackagerVersion string `yaml:"packager_version"`
	// CreatedAt is when the archive was committed.
	CreatedAt time.Time `yaml:"created_at"`
	// PackagedBy records the host and user that produced the archive.
	PackagedBy *Actor `yaml:"packaged_by,omitempty"`
	// Prefix is the directory members are stored under inside the archive.
	Prefix string `yaml:"prefix,omitempty"`
	// Exclusions lists the patterns applied.
	Exclusions []string `yaml:"exclusions"`
	// Files maps archive member paths to base64-encoded checksums.
	Files map[string]string `yaml:"files"`
}

// NewManifest produces a Manifest with initialized collections.
func NewManifest(name string) *Manifest {
	return &Manifest{
		Plugin:     name,
		Exclusions: []string{},
		Files:      make(map[string]string),
	}
}
