// Package site holds the per-site descriptors that tell the locator where
// a chat UI keeps its input and send controls.
package site

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sites.yaml
var builtinYAML []byte

// ErrUnknownSite is returned when no profile matches a host.
var ErrUnknownSite = errors.New("site: no profile for host")

// Locator is a CSS selector.
type Locator string

// Profile describes one supported chat UI.
type Profile struct {
	ID      string    `yaml:"id" json:"id"`
	Name    string    `yaml:"name" json:"name"`
	Domains []string  `yaml:"domains" json:"domains"`
	Input   []Locator `yaml:"input" json:"input"`
	Send    []Locator `yaml:"send" json:"send"`
	// KeySubmit is set when Enter in the input sends the message.
	KeySubmit bool `yaml:"key_submit" json:"key_submit"`
	// SpecialInterception widens the set of intercepted signals for
	// editors that submit on keypress/keyup or pointer events.
	SpecialInterception bool `yaml:"special_interception" json:"special_interception"`
}

// MatchesHost reports whether host is one of the profile's domains or a
// subdomain of one.
func (p Profile) MatchesHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range p.Domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

type file struct {
	Sites []Profile `yaml:"sites"`
}

// Registry is an ordered, read-only set of profiles.
type Registry struct {
	profiles []Profile
}

// Builtin returns the registry compiled into the binary.
func Builtin() *Registry {
	r, err := parse(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("site: builtin profiles: %v", err))
	}
	return r
}

// Load returns the builtin registry merged with the user's profile files
// from dir. Every *.yaml/*.yml file in dir holds a "sites:" list; files
// whose name starts with "_" are disabled. A user profile replaces the
// builtin with the same id; new ids are appended. A missing dir is not an
// error.
func Load(dir string) (*Registry, error) {
	reg := Builtin()
	if dir == "" {
		return reg, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("site: read %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isYAMLFile(name) || strings.HasPrefix(name, "_") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("site: read %s: %w", name, err)
		}
		extra, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("site: %s: %w", name, err)
		}
		reg.merge(extra)
	}
	return reg, nil
}

func parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for i, p := range f.Sites {
		if p.ID == "" {
			return nil, fmt.Errorf("profile %d: missing id", i)
		}
		if len(p.Domains) == 0 {
			return nil, fmt.Errorf("profile %s: no domains", p.ID)
		}
		if p.Name == "" {
			f.Sites[i].Name = p.ID
		}
	}
	return &Registry{profiles: f.Sites}, nil
}

func (r *Registry) merge(other *Registry) {
	for _, p := range other.profiles {
		replaced := false
		for i := range r.profiles {
			if r.profiles[i].ID == p.ID {
				r.profiles[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			r.profiles = append(r.profiles, p)
		}
	}
}

// Profiles returns a copy of every profile in registry order.
func (r *Registry) Profiles() []Profile {
	return append([]Profile(nil), r.profiles...)
}

// Get returns the profile with the given id.
func (r *Registry) Get(id string) (Profile, bool) {
	for _, p := range r.profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// Match returns the first profile whose domains cover host.
func (r *Registry) Match(host string) (Profile, error) {
	for _, p := range r.profiles {
		if p.MatchesHost(host) {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrUnknownSite, host)
}

// MatchURL is Match on the host of a page URL.
func (r *Registry) MatchURL(raw string) (Profile, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Profile{}, fmt.Errorf("site: parse url: %w", err)
	}
	return r.Match(u.Hostname())
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
