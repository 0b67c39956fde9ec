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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/caarlos0/ctrlc"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/blacktop/tlshunt/pkg/backend"
	fridabackend "github.com/blacktop/tlshunt/pkg/backend/frida"
	"github.com/blacktop/tlshunt/pkg/extract"
	"github.com/blacktop/tlshunt/pkg/hunter"
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("name", "n", "", "Name of process")
	extractCmd.Flags().IntP("pid", "p", -1, "PID of process")
	extractCmd.Flags().StringP("spawn", "s", "", "File to spawn")
	extractCmd.Flags().StringArrayP("args", "a", []string{}, "File spawn arguments")
	extractCmd.Flags().String("package", "", "App package name (sharpens android classification)")
	extractCmd.Flags().String("signatures", "", "YAML signature overlay file")
	extractCmd.Flags().StringP("output", "o", "extracted", "Output directory")
	extractCmd.Flags().Int("chunk-size", 0, "Transfer chunk size in bytes (default 64 KiB)")
	extractCmd.Flags().String("serial", "", "adb device serial (android device transports)")
	extractCmd.Flags().StringP("format", "f", "table", "Output format (table, json, plain)")
	viper.BindPFlag("extract.name", extractCmd.Flags().Lookup("name"))
	viper.BindPFlag("extract.pid", extractCmd.Flags().Lookup("pid"))
	viper.BindPFlag("extract.spawn", extractCmd.Flags().Lookup("spawn"))
	viper.BindPFlag("extract.args", extractCmd.Flags().Lookup("args"))
	viper.BindPFlag("extract.package", extractCmd.Flags().Lookup("package"))
	viper.BindPFlag("extract.signatures", extractCmd.Flags().Lookup("signatures"))
	viper.BindPFlag("extract.output", extractCmd.Flags().Lookup("output"))
	viper.BindPFlag("extract.chunk-size", extractCmd.Flags().Lookup("chunk-size"))
	viper.BindPFlag("extract.serial", extractCmd.Flags().Lookup("serial"))
	viper.BindPFlag("extract.format", extractCmd.Flags().Lookup("format"))
}

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:           "extract [MODULE...]",
	Aliases:       []string{"e", "dump"},
	Short:         "Extract TLS libraries from a process (all identified, or the named modules)",
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
		if err := targetOptions(opts, "extract"); err != nil {
			return err
		}

		catalog, err := loadCatalog(viper.GetString("extract.signatures"))
		if err != nil {
			return err
		}

		session, err := fridabackend.Attach(opts)
		if err != nil {
			return fmt.Errorf("failed to attach: %v", err)
		}

		p := mpb.New(
			mpb.WithWidth(60),
			mpb.WithRefreshRate(180 * time.Millisecond),
		)
		prog := &moduleProgress{p: p}

		h, err := hunter.New(session, hunter.Options{
			Catalog:     catalog,
			PackageName: viper.GetString("extract.package"),
			OutputDir:   viper.GetString("extract.output"),
			ChunkSize:   viper.GetInt("extract.chunk-size"),
			Serial:      viper.GetString("extract.serial"),
			Verbose:     viper.GetBool("verbose"),
			Progress:    prog.update,
		})
		if err != nil {
			session.Detach()
			return err
		}
		defer h.Close()

		var results []extract.Result

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := ctrlc.Default.Run(ctx, func() error {
			if len(args) > 0 {
				for _, name := range args {
					mod, err := session.FindModule(name)
					if err != nil {
						return err
					}
					prog.begin(*mod)
					results = append(results, h.ExtractLibrary(*mod))
					prog.end()
				}
				return nil
			}

			result, err := h.Scan(target(opts))
			if err != nil {
				return err
			}
			for _, lib := range result.Libraries {
				if !lib.Identified() {
					continue
				}
				prog.begin(lib.Module)
				results = append(results, h.ExtractLibrary(lib.Module))
				prog.end()
			}
			return nil
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("Detaching Session...")
				return nil
			}
			return err
		}
		p.Wait()

		out, err := hunter.RenderExtractions(results, viper.GetString("extract.format"), viper.GetBool("color"))
		if err != nil {
			return err
		}
		fmt.Println(out)

		return nil
	},
}

// moduleProgress drives one mpb bar per extracted module.
type moduleProgress struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func (m *moduleProgress) begin(mod backend.Module) {
	m.bar = m.p.AddBar(int64(mod.Size),
		mpb.PrependDecorators(
			decor.Name(mod.Name+" "),
			decor.CountersKibiByte("% 6.1f / % 6.1f"),
		),
		mpb.AppendDecorators(decor.Percentage()),
		mpb.BarRemoveOnComplete(),
	)
}

func (m *moduleProgress) update(received, total int64) {
	if m.bar != nil {
		m.bar.SetCurrent(received)
	}
}

func (m *moduleProgress) end() {
	if m.bar != nil {
		m.bar.SetTotal(-1, true)
		m.bar = nil
	}
}
