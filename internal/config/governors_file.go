package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// governorsFile is the on-disk shape of GOVINDEXER_GOVERNORS_FILE, decoded
// with toml.DecodeFile the way config.Load reads the node's root TOML
// config in the teacher repo. Listing many registered indexers in one
// file reads far better than the flattened NAME_* env-var blocks
// parseGovernors falls back to, once a deployment registers more than a
// couple of governors.
type governorsFile struct {
	Governor []governorEntry `toml:"Governor"`
}

type governorEntry struct {
	Name     string `toml:"Name"`
	Variant  string `toml:"Variant"`
	Contract string `toml:"Contract"`
	ChainID  string `toml:"ChainID"`
	RPC      string `toml:"RPC"`
	DAOID    string `toml:"DAOID"`
}

// loadGovernorsFile decodes path into the registered-indexer list. Unlike
// the teacher's config.Load, a missing file is an error rather than a
// seeded default: the governor list is deployment-specific and there is
// no safe default to fall back to.
func loadGovernorsFile(path string) ([]GovernorConfig, error) {
	var doc governorsFile
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("config: decode governors file %s: %w", path, err)
	}
	if len(doc.Governor) == 0 {
		return nil, fmt.Errorf("config: governors file %s declares no [[Governor]] entries", path)
	}

	out := make([]GovernorConfig, 0, len(doc.Governor))
	for i, g := range doc.Governor {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return nil, fmt.Errorf("config: governors file %s: entry %d missing Name", path, i)
		}
		if strings.TrimSpace(g.Variant) == "" {
			return nil, fmt.Errorf("config: governors file %s: %s missing Variant", path, name)
		}
		if !common.IsHexAddress(g.Contract) {
			return nil, fmt.Errorf("config: governors file %s: %s: not a valid address: %q", path, name, g.Contract)
		}
		if strings.TrimSpace(g.ChainID) == "" {
			return nil, fmt.Errorf("config: governors file %s: %s missing ChainID", path, name)
		}
		if strings.TrimSpace(g.RPC) == "" {
			return nil, fmt.Errorf("config: governors file %s: %s missing RPC", path, name)
		}
		if strings.TrimSpace(g.DAOID) == "" {
			return nil, fmt.Errorf("config: governors file %s: %s missing DAOID", path, name)
		}
		out = append(out, GovernorConfig{
			Name:            name,
			Variant:         strings.ToLower(g.Variant),
			ContractAddress: common.HexToAddress(g.Contract),
			ChainID:         g.ChainID,
			RPCEndpoint:     g.RPC,
			DAOID:           g.DAOID,
		})
	}
	return out, nil
}
