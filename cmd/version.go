// Package cmd implements the command-line interface for cadenza.
package cmd

import (
	"os"
	"runtime"
	"text/template"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/cadenza-cli/cadenza/color"
	"github.com/cadenza-cli/cadenza/constant"
	"github.com/cadenza-cli/cadenza/style"
)

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.SetOut(os.Stdout)
	versionCmd.Flags().BoolP("short", "s", false, "Display only the version string without metadata")
}

// versionCmd displays application version and build metadata.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version and build metadata",
	Run: func(cmd *cobra.Command, args []string) {
		if lo.Must(cmd.Flags().GetBool("short")) {
			cmd.Println(constant.Version)
			return
		}

		versionInfo := struct {
			App     string
			Version string
			OS      string
			Arch    string
		}{
			App:     constant.Cadenza,
			Version: constant.Version,
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
		}

		t, err := template.New("version").Funcs(map[string]any{
			"faint":   style.Faint,
			"bold":    style.Bold,
			"magenta": style.Fg(color.Purple),
		}).Parse(`{{ magenta "▇▇▇" }} {{ magenta .App }}

  {{ faint "Version" }}   {{ bold .Version }}
  {{ faint "Platform" }}  {{ bold .OS }}/{{ bold .Arch }}
`)
		handleErr(err)
		handleErr(t.Execute(cmd.OutOrStdout(), versionInfo))
	},
}
