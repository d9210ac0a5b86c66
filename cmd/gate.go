package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"bacman/core"
	"bacman/database"
	"bacman/models"

	"github.com/spf13/cobra"
)

var gateHeadersFile string

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Shows or changes the persisted probing state and override headers",
	Long: `The gate decides whether intercepted requests are probed and which headers replace
the originals. Changes made here are persisted and picked up by the next 'start' or
'proxy start'; a running instance is controlled through its API (/api/gate).`,
}

func printGateState(w io.Writer, state models.ActivationState) {
	status := "OFF"
	if state.Active {
		status = "ON"
	}
	fmt.Fprintf(w, "Probing: %s\n", status)
	headers := core.ParseOverrideHeaders(state.OverrideHeaderText)
	if len(headers) == 0 {
		fmt.Fprintln(w, "Override headers: (none)")
		return
	}
	fmt.Fprintln(w, "Override headers:")
	for _, h := range headers {
		fmt.Fprintf(w, "  %s\n", h.String())
	}
}

func setGateActive(active bool) error {
	state := loadActivationState()
	state.Active = active
	if err := database.SaveActivationState(state); err != nil {
		return err
	}
	printGateState(os.Stdout, state)
	return nil
}

var gateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the persisted probing state",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printGateState(cmd.OutOrStdout(), loadActivationState())
	},
}

var gateOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Enables probing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setGateActive(true)
	},
}

var gateOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Disables probing (in-flight probes still complete)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setGateActive(false)
	},
}

var gateHeadersCmd = &cobra.Command{
	Use:   "headers [text]",
	Short: "Sets the override headers, one 'Name: value' per line",
	Example: `  bacman gate headers $'Cookie: session=user-b\nAuthorization: Bearer eyJ...'
  bacman gate headers --file user-b.headers`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var text string
		switch {
		case gateHeadersFile != "":
			data, err := os.ReadFile(gateHeadersFile)
			if err != nil {
				return fmt.Errorf("failed to read headers file: %w", err)
			}
			text = string(data)
		case len(args) == 1:
			text = args[0]
		default:
			return fmt.Errorf("provide the header text as an argument or with --file")
		}
		text = strings.ReplaceAll(text, "\r\n", "\n")

		if len(core.ParseOverrideHeaders(text)) == 0 && strings.TrimSpace(text) != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "Warning: no valid 'Name: value' lines found; probes will replay requests unchanged.")
		}
		state := loadActivationState()
		state.OverrideHeaderText = text
		if err := database.SaveActivationState(state); err != nil {
			return err
		}
		printGateState(cmd.OutOrStdout(), state)
		return nil
	},
}

func init() {
	gateHeadersCmd.Flags().StringVarP(&gateHeadersFile, "file", "f", "", "read the override headers from a file")

	gateCmd.AddCommand(gateStatusCmd)
	gateCmd.AddCommand(gateOnCmd)
	gateCmd.AddCommand(gateOffCmd)
	gateCmd.AddCommand(gateHeadersCmd)
	rootCmd.AddCommand(gateCmd)
}
