package checklist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Provisioning is the operator-maintained file that defines monitored items.
//
//	items:
//	  - name: CloseOnHumidity
//	    eager_response: true
//	    checks:
//	      - kind: humidity
//	        mode: 1
//	        params: {threshold: 85, above: true, duration: 10m}
//	    responses:
//	      - kind: dome
//	        mode: 1
type Provisioning struct {
	Items []ItemDef `yaml:"items"`
}

// ItemDef is one item as written in the provisioning file.
type ItemDef struct {
	Name          string    `yaml:"name"`
	Active        *bool     `yaml:"active"`
	Eager         bool      `yaml:"eager"`
	EagerResponse *bool     `yaml:"eager_response"`
	Checks        []StepDef `yaml:"checks"`
	Responses     []StepDef `yaml:"responses"`
}

// StepDef is one check or response as written in the provisioning file.
type StepDef struct {
	Kind   string         `yaml:"kind"`
	Mode   int            `yaml:"mode"`
	Params map[string]any `yaml:"params"`
}

// ParseProvisioning decodes a provisioning document.
func ParseProvisioning(r io.Reader) (*Provisioning, error) {
	var p Provisioning
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &p, nil
		}
		return nil, fmt.Errorf("parsing provisioning file: %w", err)
	}
	return &p, nil
}

// LoadProvisioningFile reads and decodes a provisioning file.
func LoadProvisioningFile(path string) (*Provisioning, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("opening provisioning file: %w", err)
	}
	defer f.Close()
	return ParseProvisioning(f)
}

// ToItems converts the definitions into items. Active and EagerResponse default to true.
func (p *Provisioning) ToItems() []Item {
	items := make([]Item, 0, len(p.Items))
	for _, def := range p.Items {
		it := Item{
			Name:          def.Name,
			Active:        def.Active == nil || *def.Active,
			Eager:         def.Eager,
			EagerResponse: def.EagerResponse == nil || *def.EagerResponse,
		}
		for i, c := range def.Checks {
			it.Checks = append(it.Checks, Check{Position: i, Kind: c.Kind, Mode: c.Mode, Params: Params(c.Params)})
		}
		for i, r := range def.Responses {
			it.Responses = append(it.Responses, Response{Position: i, Kind: r.Kind, Mode: r.Mode, Params: Params(r.Params)})
		}
		items = append(items, it)
	}
	return items
}

// Provision validates every item against registry and saves them all.
// Nothing is written if any item is invalid.
//
// Items that already exist keep their runtime state: the active flag, the
// status and timestamps, and the reference time of every check whose kind,
// mode and params are unchanged at the same position. The file only sets
// active for new items.
//
// Returns the number of items saved.
func Provision(ctx context.Context, repo Repository, registry *Registry, p *Provisioning) (int, error) {
	items := p.ToItems()
	seen := make(map[string]bool, len(items))
	for i := range items {
		if seen[items[i].Name] {
			return 0, fmt.Errorf("%w: duplicate name %q", ErrInvalidItem, items[i].Name)
		}
		seen[items[i].Name] = true
		if err := registry.ValidateItem(&items[i]); err != nil {
			return 0, err
		}

		stored, err := repo.GetByName(ctx, items[i].Name)
		switch {
		case err == nil:
			keepRuntimeState(&items[i], stored)
		case errors.Is(err, ErrItemNotFound):
		default:
			return 0, fmt.Errorf("loading item %s: %w", items[i].Name, err)
		}
	}

	for i := range items {
		if err := repo.Save(ctx, &items[i]); err != nil {
			return i, fmt.Errorf("saving item %s: %w", items[i].Name, err)
		}
	}
	return len(items), nil
}

// keepRuntimeState copies the runtime state of stored into its new definition.
func keepRuntimeState(it, stored *Item) {
	it.Active = stored.Active
	for i := range it.Checks {
		if i >= len(stored.Checks) {
			break
		}
		if sameCheck(&it.Checks[i], &stored.Checks[i]) {
			it.Checks[i].ReferenceTime = stored.Checks[i].ReferenceTime
		}
	}
}

func sameCheck(a, b *Check) bool {
	if a.Kind != b.Kind || a.Mode != b.Mode {
		return false
	}
	pa, errA := marshalParams(a.Params)
	pb, errB := marshalParams(b.Params)
	return errA == nil && errB == nil && pa == pb
}
