// Package cmd implements the command-line interface for cadenza.
package cmd

import (
	"fmt"
	"os"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cadenza-cli/cadenza/color"
	"github.com/cadenza-cli/cadenza/constant"
	"github.com/cadenza-cli/cadenza/key"
	"github.com/cadenza-cli/cadenza/log"
	"github.com/cadenza-cli/cadenza/style"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")

	rootCmd.PersistentFlags().BoolP("write-history", "H", true, "Persist the playing queue so playback can be resumed")
	lo.Must0(viper.BindPFlag(key.HistorySaveOnPlay, rootCmd.PersistentFlags().Lookup("write-history")))

	rootCmd.PersistentFlags().Bool("mpris", true, "Expose the player to OS media keys over the session bus")
	lo.Must0(viper.BindPFlag(key.MprisEnable, rootCmd.PersistentFlags().Lookup("mpris")))
}

// rootCmd is the entry point. Bare invocations with paths behave like the
// play command.
var rootCmd = &cobra.Command{
	Use:   constant.Cadenza + " [paths...]",
	Short: "A minimalist command-line music player for the local library",
	Long: style.New().Italic(true).Foreground(color.HiRed).
		Render("    - A minimalist command-line music player for the local library"),
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, args)
			return
		}

		if len(args) == 0 {
			handleErr(cmd.Help())
			return
		}

		handleErr(runPlay(args, false))
	},
}

// Execute initializes child command routing and processes the CLI entry point.
func Execute() {
	if viper.GetBool(key.CliColored) {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s %s\n",
			style.ErrorTitle("✗"), strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}
