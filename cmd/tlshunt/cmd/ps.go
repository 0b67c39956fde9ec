/*
Copyright © 2023-2026 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	fridabackend "github.com/blacktop/tlshunt/pkg/backend/frida"
	"github.com/blacktop/tlshunt/pkg/table"
)

func init() {
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(devicesCmd)
}

// psCmd represents the ps command
var psCmd = &cobra.Command{
	Use:           "ps",
	Short:         "List processes on a device",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = !viper.GetBool("color")

		opts, err := deviceOptions()
		if err != nil {
			return err
		}

		procs, err := fridabackend.Processes(opts)
		if err != nil {
			return err
		}
		sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })

		t := table.New(viper.GetBool("color"))
		t.SetHeaders("PID", "Name")
		for _, p := range procs {
			t.AppendRow(strconv.Itoa(p.PID), p.Name)
		}
		fmt.Println(t.Render())

		return nil
	},
}

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:           "devices",
	Aliases:       []string{"ls"},
	Short:         "List frida-reachable devices",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		color.NoColor = !viper.GetBool("color")

		devices, err := fridabackend.Devices()
		if err != nil {
			return err
		}

		t := table.New(viper.GetBool("color"))
		t.SetHeaders("Type", "Name", "ID")
		for _, d := range devices {
			t.AppendRow(d.Type, d.Name, d.ID)
		}
		fmt.Println(t.Render())

		return nil
	},
}
