package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"

	"bacman/core"
	"bacman/models"

	"github.com/spf13/cobra"
)

var (
	probeTargetURL    string
	probeRequestFile  string
	probeResponseFile string
	probeHeaders      string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Runs probes outside the proxy",
}

// serviceFromURL turns scheme://host[:port] into a Service with the default port filled in.
func serviceFromURL(raw string) (models.Service, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return models.Service{}, fmt.Errorf("invalid --url '%s': %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.Service{}, fmt.Errorf("invalid --url '%s': scheme must be http or https", raw)
	}
	if u.Hostname() == "" {
		return models.Service{}, fmt.Errorf("invalid --url '%s': missing host", raw)
	}
	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return models.Service{}, fmt.Errorf("invalid --url '%s': bad port", raw)
		}
	}
	return models.Service{Scheme: u.Scheme, Host: u.Hostname(), Port: port}, nil
}

var probeSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Replays one raw request with the override headers and classifies the result",
	Long: `Reads a raw HTTP request from --request-file (and optionally the response the
original session got from --response-file), replays it against --url with the override
headers and prints the classified result. The result is stored like any proxied probe.`,
	Example: `  bacman probe send --url https://api.example.com --request-file req.txt --response-file resp.txt`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := serviceFromURL(probeTargetURL)
		if err != nil {
			return err
		}
		rawReq, err := os.ReadFile(probeRequestFile)
		if err != nil {
			return fmt.Errorf("failed to read request file: %w", err)
		}
		rec, err := core.ParseRawRequest(service, rawReq)
		if err != nil {
			return err
		}
		msg := models.InterceptedMessage{Origin: models.OriginRepeater, IsRequest: true, Request: rec}
		if probeResponseFile != "" {
			if msg.RawResponse, err = os.ReadFile(probeResponseFile); err != nil {
				return fmt.Errorf("failed to read response file: %w", err)
			}
		}

		state := loadActivationState()
		state.Active = true
		if cmd.Flags().Changed("headers") {
			state.OverrideHeaderText = probeHeaders
		}

		var mu sync.Mutex
		var results []models.ProbeResult
		collect := core.SinkFunc(func(r models.ProbeResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		})
		rt := newProbeRuntime(state, collect)
		if !rt.Coordinator.Submit(msg) {
			return fmt.Errorf("probe was rejected by the activation gate")
		}
		rt.drain()

		if len(results) == 0 {
			return fmt.Errorf("probe produced no result; check the proxy log")
		}
		writeResultsTable(cmd.OutOrStdout(), results, nil)
		if results[0].ReplayError != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Replay error: %s\n", results[0].ReplayError)
		}
		return nil
	},
}

func init() {
	probeSendCmd.Flags().StringVar(&probeTargetURL, "url", "", "service to send the request to, scheme://host[:port]")
	probeSendCmd.Flags().StringVar(&probeRequestFile, "request-file", "", "file holding the raw HTTP request")
	probeSendCmd.Flags().StringVar(&probeResponseFile, "response-file", "", "file holding the raw response the original session received")
	probeSendCmd.Flags().StringVar(&probeHeaders, "headers", "", "override header text for this probe only")
	_ = probeSendCmd.MarkFlagRequired("url")
	_ = probeSendCmd.MarkFlagRequired("request-file")

	probeCmd.AddCommand(probeSendCmd)
	rootCmd.AddCommand(probeCmd)
}
