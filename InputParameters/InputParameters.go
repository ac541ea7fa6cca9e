package InputParameters

import (
	"fmt"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/polyredist/types"
)

// Parameters obtained from the YAML run description
type RedistParameters struct {
	Title      string   `yaml:"Title"`
	Ranks      int      `yaml:"Ranks"`     // Local ranks, ignored when Addresses is set
	Policy     string   `yaml:"Policy"`    // identity, block, round-robin, morton, metis
	TypeSet    string   `yaml:"TypeSet"`   // full or legacy
	Recolor    bool     `yaml:"Recolor"`   // Overwrite cell scalars with the source rank
	OutputDir  string   `yaml:"OutputDir"` // Where rank_<r>.h5 files go, none written when empty
	Addresses  []string `yaml:"Addresses"` // host:port of every rank for networked workers
	MortonBits int      `yaml:"MortonBits"`
	Imbalance  float32  `yaml:"Imbalance"` // METIS load imbalance, e.g. 1.05
	Objective  string   `yaml:"Objective"` // METIS objective, vol or cut
}

func (ip *RedistParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	ip.setDefaults()
	return ip.validate()
}

func (ip *RedistParameters) setDefaults() {
	if ip.Ranks == 0 {
		ip.Ranks = 1
	}
	if len(ip.Addresses) != 0 {
		ip.Ranks = len(ip.Addresses)
	}
	if ip.Policy == "" {
		ip.Policy = "block"
	}
	if ip.TypeSet == "" {
		ip.TypeSet = "full"
	}
}

func (ip *RedistParameters) validate() error {
	if ip.Ranks < 1 {
		return fmt.Errorf("ranks must be positive, have %d", ip.Ranks)
	}
	if _, err := ip.Types(); err != nil {
		return err
	}
	return nil
}

// Types maps the TypeSet name onto the codec's supported set
func (ip *RedistParameters) Types() (types.TypeSet, error) {
	switch strings.ToLower(ip.TypeSet) {
	case "", "full":
		return types.FullTypeSet, nil
	case "legacy":
		return types.LegacyTypeSet, nil
	}
	return 0, fmt.Errorf("unknown type set %q, have full or legacy", ip.TypeSet)
}

func (ip *RedistParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", ip.Ranks)
	fmt.Printf("[%s]\t\t\t= Policy\n", ip.Policy)
	fmt.Printf("[%s]\t\t\t= TypeSet\n", ip.TypeSet)
	fmt.Printf("[%v]\t\t\t= Recolor\n", ip.Recolor)
	if ip.OutputDir != "" {
		fmt.Printf("[%s]\t= OutputDir\n", ip.OutputDir)
	}
	for r, addr := range ip.Addresses {
		fmt.Printf("Addresses[%d] = %s\n", r, addr)
	}
}
