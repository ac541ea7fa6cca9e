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
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/polyredist/partitions"
	"github.com/notargets/polyredist/polymesh"
)

// InfoCmd represents the info command
var InfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print statistics of a mesh file",
	Long: `
Reads an SU2 mesh and prints its size, bounds, polygon sizes and the cell
adjacency used by the metis policy.

polyredist info -F mesh.su2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gridFile := viper.GetString("info.gridFile")
		if len(gridFile) == 0 {
			return fmt.Errorf("must supply a grid file (-F, --gridFile) in SU2 format")
		}
		m, err := loadMesh(gridFile)
		if err != nil {
			return err
		}
		PrintInfo(os.Stdout, m)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(InfoCmd)
	InfoCmd.Flags().StringP("gridFile", "F", "", "Grid file to read in SU2 (.su2) format")
	viper.BindPFlag("info.gridFile", InfoCmd.Flags().Lookup("gridFile"))
}

func PrintInfo(w io.Writer, m *polymesh.Mesh) {
	fmt.Fprintf(w, "Mesh: %s\n", m)
	if lo, hi, ok := m.Bounds(); ok {
		fmt.Fprintf(w, "Bounds: [%g, %g] x [%g, %g] x [%g, %g]\n", lo[0], hi[0], lo[1], hi[1], lo[2], hi[2])
	}
	sizes := make(map[int]int)
	for c := 0; c < m.NumCells(); c++ {
		sizes[m.Polys.CellLength(c)-1]++
	}
	keys := make([]int, 0, len(sizes))
	for k := range sizes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %d-gons: %d\n", k, sizes[k])
	}
	for _, as := range []struct {
		what string
		set  *polymesh.AttributeSet
	}{{"cell", m.CellData}, {"point", m.PointData}} {
		for _, r := range polymesh.AllRoles() {
			if arr := as.set.Get(r); arr != nil {
				fmt.Fprintf(w, "  %s %s: %q %s x %d\n", as.what, r, arr.Name(), arr.Type(), arr.Components())
			}
		}
	}
	dg := partitions.NewDualGraph(m)
	fmt.Fprintf(w, "Dual graph: %d cells, %d edges\n", dg.NumVertices(), len(dg.Adjncy)/2)
}
