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
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/polyredist/InputParameters"
	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
	"github.com/notargets/polyredist/redistribute"
)

// WorkerCmd represents the worker command
var WorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run one rank of a networked group",
	Long: `
Joins the group listed under Addresses in the input file as the given rank,
connecting to the other ranks over websockets. Rank 0 reads the grid file,
the other ranks start empty.

polyredist worker --rank 1 -F mesh.su2 -I run.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rm := &RedistModel{
			GridFile: viper.GetString("worker.gridFile"),
			ICFile:   viper.GetString("worker.inputConditionsFile"),
			Policy:   viper.GetString("worker.policy"),
			Output:   viper.GetString("worker.outputDir"),
		}
		ip, err := processInput(rm)
		if err != nil {
			return err
		}
		rank := viper.GetInt("worker.rank")
		res, err := RunWorker(cmd.Context(), rank, rm.GridFile, ip, viper.GetDuration("worker.timeout"))
		if err != nil {
			return err
		}
		res.Stats.Print()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(WorkerCmd)
	flags := WorkerCmd.Flags()
	flags.IntP("rank", "r", 0, "rank of this worker, an index into Addresses")
	flags.StringP("gridFile", "F", "", "Grid file to read in SU2 (.su2) format, used on rank 0")
	flags.StringP("inputConditionsFile", "I", "", "YAML file for run parameters, must list Addresses")
	flags.StringP("policy", "p", "", "partition policy, overrides the input file")
	flags.StringP("outputDir", "o", "", "directory for the per rank HDF5 files, overrides the input file")
	flags.Duration("timeout", time.Minute, "how long to wait for the other ranks to connect")
	for _, name := range []string{"rank", "gridFile", "inputConditionsFile", "policy", "outputDir", "timeout"} {
		viper.BindPFlag("worker."+name, flags.Lookup(name))
	}
}

// RunWorker joins the websocket group as rank and runs one rank's share
func RunWorker(ctx context.Context, rank int, gridFile string, ip *InputParameters.RedistParameters,
	timeout time.Duration) (*redistribute.Result, error) {
	if len(ip.Addresses) == 0 {
		return nil, fmt.Errorf("input file lists no Addresses for the worker group")
	}
	var (
		m   = polymesh.NewMesh()
		err error
	)
	if rank == 0 {
		if m, err = loadMesh(gridFile); err != nil {
			return nil, err
		}
		fmt.Printf("Read %s: %s\n", gridFile, m)
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	g, err := comm.NewWSGroup(dialCtx, rank, ip.Addresses, nil)
	cancel()
	if err != nil {
		return nil, err
	}
	defer g.Close()
	return runRank(ctx, g, m, ip)
}
