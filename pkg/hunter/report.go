package hunter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/blacktop/tlshunt/pkg/extract"
	"github.com/blacktop/tlshunt/pkg/scanner"
	"github.com/blacktop/tlshunt/pkg/table"
)

// Report output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatPlain = "plain"
)

// RenderScan formats a scan result. styled only affects the table format.
func RenderScan(result *scanner.ScanResult, format string, styled bool) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatPlain:
		return renderScanPlain(result), nil
	case FormatTable:
		return renderScanTable(result, styled), nil
	}
	return "", fmt.Errorf("unknown output format %q", format)
}

func renderScanTable(result *scanner.ScanResult, styled bool) string {
	t := table.New(styled)
	t.SetHeaders("Module", "Identity", "Variant", "Version", "Class", "Evidence", "Size")
	for _, lib := range result.Libraries {
		identity := lib.Identity
		if lib.Identified() {
			identity = color.GreenString(scanner.DisplayName(lib.Identity))
		}
		t.AppendRow(
			lib.Module.Name,
			identity,
			lib.Variant,
			lib.Version,
			lib.Class,
			strings.Join(lib.Evidence, ","),
			humanize.Bytes(lib.Module.Size),
		)
	}

	var out strings.Builder
	out.WriteString(t.Render())
	out.WriteString("\n\n")
	fmt.Fprintf(&out, "%d TLS libraries in %d scanned modules (%s, %s)\n",
		countIdentified(result), result.ModulesScanned, result.Platform,
		result.Duration.Round(1e6).String())
	for _, e := range result.Errors {
		out.WriteString(color.YellowString("  warning: %s\n", e))
	}
	return out.String()
}

func renderScanPlain(result *scanner.ScanResult) string {
	var out strings.Builder
	for _, lib := range result.Libraries {
		fmt.Fprintf(&out, "%s\t%s", lib.Module.Name, lib.Identity)
		if lib.Variant != "" {
			fmt.Fprintf(&out, " (%s)", lib.Variant)
		}
		if lib.Version != "" {
			fmt.Fprintf(&out, " %s", lib.Version)
		}
		fmt.Fprintf(&out, "\t%s\t%s\n", lib.Class, lib.Module.Path)
	}
	return out.String()
}

func countIdentified(result *scanner.ScanResult) int {
	n := 0
	for _, lib := range result.Libraries {
		if lib.Identified() {
			n++
		}
	}
	return n
}

// RenderExtractions formats extraction outcomes.
func RenderExtractions(results []extract.Result, format string, styled bool) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatPlain, FormatTable:
		t := table.New(styled && format == FormatTable)
		t.SetHeaders("Module", "Method", "Status", "Size", "Output")
		for _, r := range results {
			status := color.GreenString("ok")
			detail := r.OutputPath
			if !r.Success {
				status = color.RedString("failed")
				detail = r.Error
			}
			t.AppendRow(r.Module.Name, r.Method, status, humanize.Bytes(uint64(r.Bytes)), detail)
		}
		return t.Render() + "\n", nil
	}
	return "", fmt.Errorf("unknown output format %q", format)
}
