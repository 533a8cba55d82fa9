package provider

import (
	"context"
	"os"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/intel-cli/internal/model"
)

// Fixture is a Provider that replays recorded payloads. It backs offline
// runs of the gather command and tests.
type Fixture struct {
	name  string
	caps  []model.Capability
	data  []model.IntelDatum
	shops map[string]bool
	err   error
}

// NewFixture creates a fixture provider replaying data. Capabilities are
// derived from the datums.
func NewFixture(name string, data []model.IntelDatum) *Fixture {
	f := &Fixture{name: name}
	for _, d := range data {
		d.Provider = name
		f.data = append(f.data, d)
		if !slices.Contains(f.caps, d.Capability) {
			f.caps = append(f.caps, d.Capability)
		}
	}
	return f
}

// RestrictShops limits IsConfigured to the given shop ids.
func (f *Fixture) RestrictShops(ids ...string) *Fixture {
	f.shops = make(map[string]bool, len(ids))
	for _, id := range ids {
		f.shops[id] = true
	}
	return f
}

// FailWith makes every Fetch return err.
func (f *Fixture) FailWith(err error) *Fixture {
	f.err = err
	return f
}

func (f *Fixture) Name() string                     { return f.name }
func (f *Fixture) Capabilities() []model.Capability { return f.caps }

func (f *Fixture) IsConfigured(shopID string) bool {
	return f.shops == nil || f.shops[shopID]
}

// Fetch returns the recorded datums whose capability was requested.
func (f *Fixture) Fetch(ctx context.Context, req Request) ([]model.IntelDatum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []model.IntelDatum
	for _, d := range f.data {
		if len(req.Capabilities) == 0 || slices.Contains(req.Capabilities, d.Capability) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *Fixture) Healthcheck(_ context.Context) Health {
	return Health{
		OK:      f.err == nil,
		Details: map[string]string{"datums": strconv.Itoa(len(f.data))},
	}
}

// ReadDatums reads a list of IntelDatum from a YAML or JSON file.
func ReadDatums(path string) ([]model.IntelDatum, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read %s", path)
	}
	var data []model.IntelDatum
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, eris.Wrapf(err, "provider: parse %s", path)
	}
	return data, nil
}

// LoadFixtures reads recorded datums from path and returns one Fixture per
// provider named in the file, in first-seen order.
func LoadFixtures(path string) ([]*Fixture, error) {
	data, err := ReadDatums(path)
	if err != nil {
		return nil, err
	}

	var order []string
	byProvider := make(map[string][]model.IntelDatum)
	for i, d := range data {
		if d.Provider == "" {
			return nil, eris.Errorf("provider: datum %d in %s has no provider", i, path)
		}
		if _, ok := byProvider[d.Provider]; !ok {
			order = append(order, d.Provider)
		}
		byProvider[d.Provider] = append(byProvider[d.Provider], d)
	}

	fixtures := make([]*Fixture, 0, len(order))
	for _, name := range order {
		fixtures = append(fixtures, NewFixture(name, byProvider[name]))
	}
	return fixtures, nil
}
