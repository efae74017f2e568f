package core

// Profile describes an agent participant. The role/persona/skills/domains
// fields form the corpus smart routing scores against.
type Profile struct {
	ID      string   `json:"id" yaml:"id" toml:"id"`
	Name    string   `json:"name" yaml:"name" toml:"name"`
	Role    string   `json:"role" yaml:"role" toml:"role"`
	Persona string   `json:"persona,omitempty" yaml:"persona,omitempty" toml:"persona,omitempty"`
	Skills  []string `json:"skills,omitempty" yaml:"skills,omitempty" toml:"skills,omitempty"`
	Domains []string `json:"domains,omitempty" yaml:"domains,omitempty" toml:"domains,omitempty"`
}

// DisplayName returns Name, falling back to ID.
func (p Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// ProfileSource resolves participant profiles by actor ID.
type ProfileSource interface {
	Profiles(ids []string) map[string]Profile
}
