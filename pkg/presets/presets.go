// Package presets stores named charge parameter sets.
package presets

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"regexp"
	"sort"
	"time"

	scribble "github.com/nanobox-io/golang-scribble"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/chargeguru/chargeguru/pkg/form"
)

const collection = "presets"

var (
	// ErrNotFound is returned for an unknown preset name.
	ErrNotFound = errors.New("preset not found")

	namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)
)

// Preset is a named set of form selections.
type Preset struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Form        form.State `json:"form" yaml:"form"`
	UpdatedAt   time.Time  `json:"updatedAt" yaml:"updatedAt,omitempty"`
}

// ValidateName checks that name can be used as a preset file name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return pkgerrors.Errorf("invalid preset name %q: use letters, digits, '.', '_' or '-'", name)
	}
	return nil
}

// Store keeps presets as JSON documents under a directory.
type Store struct {
	db *scribble.Driver
}

// Open opens or creates a store in dir.
func Open(dir string) (*Store, error) {
	db, err := scribble.New(dir, nil)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open preset store in %s", dir)
	}
	return &Store{db: db}, nil
}

// List returns every preset sorted by name.
func (s *Store) List() ([]Preset, error) {
	records, err := s.db.ReadAll(collection)
	if err != nil {
		if os.IsNotExist(err) {
			return []Preset{}, nil
		}
		return nil, pkgerrors.Wrap(err, "failed to read presets")
	}

	list := make([]Preset, 0, len(records))
	for _, rec := range records {
		var p Preset
		if err := json.Unmarshal([]byte(rec), &p); err != nil {
			logrus.WithError(err).Warn("skipping unreadable preset")
			continue
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// Get returns the preset called name.
func (s *Store) Get(name string) (Preset, error) {
	if err := ValidateName(name); err != nil {
		return Preset{}, err
	}
	var p Preset
	if err := s.db.Read(collection, name, &p); err != nil {
		if os.IsNotExist(err) {
			return Preset{}, pkgerrors.Wrapf(ErrNotFound, "%s", name)
		}
		return Preset{}, pkgerrors.Wrapf(err, "failed to read preset %s", name)
	}
	return p, nil
}

// Save creates or replaces a preset.
func (s *Store) Save(p Preset) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if err := p.Form.Validate(0); err != nil {
		return pkgerrors.Wrapf(err, "preset %s", p.Name)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().Round(time.Second)
	}
	if err := s.db.Write(collection, p.Name, p); err != nil {
		return pkgerrors.Wrapf(err, "failed to write preset %s", p.Name)
	}
	logrus.WithFields(logrus.Fields{
		"preset":  p.Name,
		"battery": p.Form.BatteryType.String(),
	}).Debug("preset saved")
	return nil
}

// Delete removes a preset.
func (s *Store) Delete(name string) error {
	if _, err := s.Get(name); err != nil {
		return err
	}
	if err := s.db.Delete(collection, name); err != nil {
		return pkgerrors.Wrapf(err, "failed to delete preset %s", name)
	}
	return nil
}

// Export writes presets as a YAML list.
func Export(w io.Writer, list []Preset) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(list); err != nil {
		return pkgerrors.Wrap(err, "failed to encode presets")
	}
	return enc.Close()
}

// Import reads a YAML list written by Export. Every preset is validated.
func Import(r io.Reader) ([]Preset, error) {
	var list []Preset
	if err := yaml.NewDecoder(r).Decode(&list); err != nil {
		if errors.Is(err, io.EOF) {
			return []Preset{}, nil
		}
		return nil, pkgerrors.Wrap(err, "failed to decode presets")
	}
	for _, p := range list {
		if err := ValidateName(p.Name); err != nil {
			return nil, err
		}
		if err := p.Form.Validate(0); err != nil {
			return nil, pkgerrors.Wrapf(err, "preset %s", p.Name)
		}
	}
	return list, nil
}
