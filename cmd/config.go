// Package cmd implements the command-line interface for cadenza.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/cadenza-cli/cadenza/color"
	"github.com/cadenza-cli/cadenza/config"
	"github.com/cadenza-cli/cadenza/style"
)

func errUnknownKey(key string) error {
	return fmt.Errorf("unknown key %s", style.Fg(color.Red)(key))
}

func completionConfigKeys(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return lo.Keys(config.Default), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// configCmd serves as the parent command for managing application configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage application configuration settings and defaults",
}

func init() {
	configCmd.AddCommand(configInfoCmd)
	configInfoCmd.Flags().StringSliceP("key", "k", []string{}, "Specify the configuration keys to retrieve information for")
	configInfoCmd.Flags().BoolP("json", "j", false, "Format the output as a JSON string")
	_ = configInfoCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)

	configInfoCmd.SetOut(os.Stdout)
}

// configInfoCmd prints the fields of the configuration with their current
// and default values.
var configInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configuration fields with their values",
	Run: func(cmd *cobra.Command, args []string) {
		keys := lo.Must(cmd.Flags().GetStringSlice("key"))
		asJson := lo.Must(cmd.Flags().GetBool("json"))

		var fields []config.Field
		if len(keys) == 0 {
			fields = lo.Values(config.Default)
		} else {
			for _, k := range keys {
				field, ok := config.Default[k]
				if !ok {
					handleErr(errUnknownKey(k))
				}
				fields = append(fields, field)
			}
		}

		sort.Slice(fields, func(i, j int) bool {
			return fields[i].Key < fields[j].Key
		})

		if asJson {
			encoded := lo.Must(json.Marshal(lo.Map(fields, func(f config.Field, _ int) *config.Field {
				return &f
			})))
			cmd.Println(string(encoded))
			return
		}

		for i, field := range fields {
			cmd.Println(field.Pretty())
			if i != len(fields)-1 {
				cmd.Println()
			}
		}
	},
}
