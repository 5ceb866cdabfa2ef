package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"qugate/crypto"
	"qugate/native/gates"
)

// Genesis seeds a fresh node: the fee schedule, the starting epoch and the
// initial identity balances keyed by bech32 or hex identity.
type Genesis struct {
	Params   gates.Params      `yaml:"params"`
	Epoch    uint16            `yaml:"epoch"`
	Balances map[string]uint64 `yaml:"balances"`
}

// DefaultGenesis has the stock fee schedule and no balances.
func DefaultGenesis() *Genesis {
	return &Genesis{Params: gates.DefaultParams(), Balances: map[string]uint64{}}
}

// LoadGenesis reads a YAML genesis file. Omitted params keep their defaults.
// An empty path yields DefaultGenesis.
func LoadGenesis(path string) (*Genesis, error) {
	g := DefaultGenesis()
	if path == "" {
		return g, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	if err := yaml.Unmarshal(raw, g); err != nil {
		return nil, fmt.Errorf("decode genesis %s: %w", path, err)
	}
	if err := g.Params.Validate(); err != nil {
		return nil, fmt.Errorf("genesis params: %w", err)
	}
	if _, err := g.Accounts(); err != nil {
		return nil, err
	}
	return g, nil
}

// Accounts parses the balance keys into identities.
func (g *Genesis) Accounts() (map[crypto.Identity]uint64, error) {
	out := make(map[crypto.Identity]uint64, len(g.Balances))
	for raw, amount := range g.Balances {
		id, err := crypto.ParseIdentity(raw)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %q: %w", raw, err)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("genesis balance %q listed twice", raw)
		}
		out[id] = amount
	}
	return out, nil
}
