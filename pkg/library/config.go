package library

import (
	"time"

	"github.com/google/uuid"

	"github.com/sd-io/sdcore/pkg/encoding"
)

// Member is one device's membership record within a library's config, per
// spec.md §3's "A library has a set of member devices; each member has a
// boolean sync_enabled."
type Member struct {
	DeviceUUID  uuid.UUID `yaml:"deviceUuid"`
	Name        string    `yaml:"name"`
	SyncEnabled bool      `yaml:"syncEnabled"`
	JoinedAt    time.Time `yaml:"joinedAt"`
}

// Config is a library's persisted, non-sqlite configuration: its identity,
// display name, and member list. It is the ".sdlibrary" file named in
// spec.md's persisted layout, sitting alongside (but separate from) the
// library's sqlite database.
type Config struct {
	LibraryUUID uuid.UUID `yaml:"libraryUuid"`
	Name        string    `yaml:"name"`
	Members     []Member  `yaml:"members"`
}

// AddMember appends a new member to the config, or updates its
// SyncEnabled flag in place if the device is already a member.
func (c *Config) AddMember(device uuid.UUID, name string, syncEnabled bool) {
	for i := range c.Members {
		if c.Members[i].DeviceUUID == device {
			c.Members[i].SyncEnabled = syncEnabled
			return
		}
	}
	c.Members = append(c.Members, Member{
		DeviceUUID:  device,
		Name:        name,
		SyncEnabled: syncEnabled,
		JoinedAt:    time.Now().UTC(),
	})
}

// loadConfig loads a library config from path.
func loadConfig(path string) (*Config, error) {
	config := &Config{}
	if err := encoding.LoadAndUnmarshalYAML(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// saveConfig atomically saves config to path.
func saveConfig(path string, config *Config) error {
	return encoding.MarshalAndSaveYAML(path, config)
}
