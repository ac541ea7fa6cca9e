/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/polyredist/InputParameters"
	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/partitions"
	"github.com/notargets/polyredist/polymesh"
	"github.com/notargets/polyredist/redistribute"
	"github.com/notargets/polyredist/types"
)

type RedistModel struct {
	GridFile string
	ICFile   string
	Ranks    int
	Policy   string
	Output   string
}

const exampleFile = `
########################################
Title: "Test Case"
Ranks: 4
Policy: morton # identity, block, round-robin, morton, metis
TypeSet: full # or legacy
Recolor: false
OutputDir: ./out
########################################
`

// RedistributeCmd represents the redistribute command
var RedistributeCmd = &cobra.Command{
	Use:   "redistribute",
	Short: "Read a mesh on rank 0 and spread it over local ranks",
	Long: `
Reads an SU2 mesh on rank 0, tags every cell with a GlobalCellId scalar and
redistributes the cells over a group of in-process ranks. Each rank can write
its piece as rank_<r>.h5.

polyredist redistribute -F mesh.su2 -I run.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rm := &RedistModel{
			GridFile: viper.GetString("redistribute.gridFile"),
			ICFile:   viper.GetString("redistribute.inputConditionsFile"),
			Ranks:    viper.GetInt("redistribute.ranks"),
			Policy:   viper.GetString("redistribute.policy"),
			Output:   viper.GetString("redistribute.outputDir"),
		}
		ip, err := processInput(rm)
		if err != nil {
			return err
		}
		ip.Print()
		results, err := RunLocal(cmd.Context(), rm.GridFile, ip)
		if err != nil {
			return err
		}
		for _, res := range results {
			res.Stats.Print()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(RedistributeCmd)
	flags := RedistributeCmd.Flags()
	flags.StringP("gridFile", "F", "", "Grid file to read in SU2 (.su2) format")
	flags.StringP("inputConditionsFile", "I", "", "YAML file for run parameters like:\n\t- Ranks\n\t- Policy")
	flags.IntP("ranks", "n", 0, "number of local ranks, overrides the input file")
	flags.StringP("policy", "p", "", "partition policy, overrides the input file")
	flags.StringP("outputDir", "o", "", "directory for the per rank HDF5 files, overrides the input file")
	for _, name := range []string{"gridFile", "inputConditionsFile", "ranks", "policy", "outputDir"} {
		viper.BindPFlag("redistribute."+name, flags.Lookup(name))
	}
}

// processInput reads the run parameters and applies the command line
// overrides. Without an input file the defaults are used.
func processInput(rm *RedistModel) (ip *InputParameters.RedistParameters, err error) {
	if len(rm.GridFile) == 0 {
		return nil, fmt.Errorf("must supply a grid file (-F, --gridFile) in SU2 format")
	}
	var data []byte
	if len(rm.ICFile) != 0 {
		var path string
		if path, err = homedir.Expand(rm.ICFile); err != nil {
			return
		}
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("%w\nExample File:%s", err, exampleFile)
		}
	}
	ip = &InputParameters.RedistParameters{}
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rm.ICFile, err)
	}
	if rm.Ranks > 0 {
		ip.Ranks = rm.Ranks
	}
	if rm.Policy != "" {
		ip.Policy = rm.Policy
	}
	if rm.Output != "" {
		ip.OutputDir = rm.Output
	}
	return
}

// loadMesh reads an SU2 mesh and numbers its cells with a GlobalCellId
// scalar unless cell scalars are already present
func loadMesh(gridFile string) (*polymesh.Mesh, error) {
	path, err := homedir.Expand(gridFile)
	if err != nil {
		return nil, err
	}
	m, err := polymesh.ReadSU2(path)
	if err != nil {
		return nil, err
	}
	if m.CellData.Get(polymesh.Scalars) == nil {
		ids := types.NewArray[int64]("GlobalCellId", 1, m.NumCells())
		for c := 0; c < m.NumCells(); c++ {
			ids.Set(c, 0, int64(c))
		}
		m.CellData.Set(polymesh.Scalars, ids)
	}
	return m, nil
}

// runRank is one rank's share of a run: plan and move the cells, then write
// the piece and report the balance
func runRank(ctx context.Context, g comm.Group, m *polymesh.Mesh,
	ip *InputParameters.RedistParameters) (*redistribute.Result, error) {
	planner, err := partitions.NewPlanner(ip.Policy, partitions.Config{
		MortonBits: ip.MortonBits,
		Imbalance:  ip.Imbalance,
		Objective:  ip.Objective,
	})
	if err != nil {
		return nil, err
	}
	ts, err := ip.Types()
	if err != nil {
		return nil, err
	}
	rd := redistribute.New(redistribute.Options{Planner: planner, Types: ts, Recolor: ip.Recolor})
	res, err := rd.Run(ctx, g, m)
	if err != nil {
		return nil, err
	}
	if ip.OutputDir != "" {
		dir, err := homedir.Expand(ip.OutputDir)
		if err != nil {
			return nil, err
		}
		if err = os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		if err = polymesh.WriteHDF5(filepath.Join(dir, fmt.Sprintf("rank_%d.h5", g.Rank())), res.Mesh); err != nil {
			return nil, err
		}
	}
	bal, err := partitions.MeasureBalance(ctx, g, res.Mesh.NumCells())
	if err != nil {
		return nil, err
	}
	if g.Rank() == 0 {
		bal.Print(os.Stdout)
	}
	return res, nil
}

// RunLocal reads the grid on rank 0 and runs ip.Ranks ranks in process
func RunLocal(ctx context.Context, gridFile string,
	ip *InputParameters.RedistParameters) ([]*redistribute.Result, error) {
	m, err := loadMesh(gridFile)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Read %s: %s\n", gridFile, m)
	results := make([]*redistribute.Result, ip.Ranks)
	err = comm.RunLocal(ctx, ip.Ranks, func(ctx context.Context, g comm.Group) (err error) {
		in := polymesh.NewMesh()
		if g.Rank() == 0 {
			in = m
		}
		results[g.Rank()], err = runRank(ctx, g, in, ip)
		return
	})
	return results, err
}
