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

	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	fridabackend "github.com/blacktop/tlshunt/pkg/backend/frida"
	"github.com/blacktop/tlshunt/pkg/hunter"
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("name", "n", "", "Name of process")
	scanCmd.Flags().IntP("pid", "p", -1, "PID of process")
	scanCmd.Flags().StringP("spawn", "s", "", "File to spawn")
	scanCmd.Flags().StringArrayP("args", "a", []string{}, "File spawn arguments")
	scanCmd.Flags().String("package", "", "App package name (sharpens android classification)")
	scanCmd.Flags().String("signatures", "", "YAML signature overlay file")
	scanCmd.Flags().StringP("format", "f", "table", "Output format (table, json, plain)")
	scanCmd.Flags().Int("parallel", 4, "Concurrent module scans")
	viper.BindPFlag("scan.name", scanCmd.Flags().Lookup("name"))
	viper.BindPFlag("scan.pid", scanCmd.Flags().Lookup("pid"))
	viper.BindPFlag("scan.spawn", scanCmd.Flags().Lookup("spawn"))
	viper.BindPFlag("scan.args", scanCmd.Flags().Lookup("args"))
	viper.BindPFlag("scan.package", scanCmd.Flags().Lookup("package"))
	viper.BindPFlag("scan.signatures", scanCmd.Flags().Lookup("signatures"))
	viper.BindPFlag("scan.format", scanCmd.Flags().Lookup("format"))
	viper.BindPFlag("scan.parallel", scanCmd.Flags().Lookup("parallel"))
}

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:           "scan",
	Aliases:       []string{"s"},
	Short:         "Fingerprint TLS libraries loaded in a process",
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
		if err := targetOptions(opts, "scan"); err != nil {
			return err
		}

		catalog, err := loadCatalog(viper.GetString("scan.signatures"))
		if err != nil {
			return err
		}

		session, err := fridabackend.Attach(opts)
		if err != nil {
			return fmt.Errorf("failed to attach: %v", err)
		}

		h, err := hunter.New(session, hunter.Options{
			Catalog:     catalog,
			PackageName: viper.GetString("scan.package"),
			Parallel:    viper.GetInt("scan.parallel"),
			Verbose:     viper.GetBool("verbose"),
		})
		if err != nil {
			session.Detach()
			return err
		}
		defer h.Close()

		result, err := h.Scan(target(opts))
		if err != nil {
			return err
		}

		out, err := hunter.RenderScan(result, viper.GetString("scan.format"), viper.GetBool("color"))
		if err != nil {
			return err
		}
		fmt.Println(out)

		return nil
	},
}

func target(opts *fridabackend.Options) string {
	switch {
	case opts.ProcessName != "":
		return opts.ProcessName
	case opts.Spawn != "":
		return opts.Spawn
	default:
		return fmt.Sprintf("pid:%d", opts.PID)
	}
}
