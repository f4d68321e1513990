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
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/driver"
)

// solveCmd represents the solve command
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run a multi-zone problem from a driver configuration file",
	Long: `Run a multi-zone problem from a driver configuration file. The
driver file names one YAML deck per zone; ranks and threads default to 1.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		driverFile, err := cmd.Flags().GetString("driverFile")
		if err != nil {
			panic(err)
		}
		if len(driverFile) == 0 {
			fmt.Printf("error: must supply a driver configuration file (-F, --driverFile)\n")
			os.Exit(1)
		}
		if prof, _ := cmd.Flags().GetBool("profile"); prof {
			defer profile.Start().Stop()
		}
		nRanks, _ := cmd.Flags().GetInt("ranks")
		runSolve(driverFile, nRanks)
	},
}

func runSolve(driverFile string, nRanks int) {
	var (
		err error
		dc  = &config.Driver{}
	)
	data, err := os.ReadFile(driverFile)
	if err != nil {
		fmt.Printf("error: unable to read driver file [%s]: %s\n", driverFile, err.Error())
		os.Exit(1)
	}
	if err = dc.Parse(data); err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
	if nRanks > 0 {
		dc.NRanks = nRanks
	}
	if err = driver.RunProblem(dc); err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.Flags().StringP("driverFile", "F", "", "driver configuration file in YAML format")
	solveCmd.Flags().IntP("ranks", "r", 0, "override the configured rank count")
	solveCmd.Flags().Bool("profile", false, "write a CPU profile for the run")
}
