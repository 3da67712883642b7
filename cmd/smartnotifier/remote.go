package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/gate"
)

var (
	gateRinger string
	gateDND    bool
	gateQuiet  string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Post a check notification through the running daemon",
	Long: `Asks the daemon to post a notification on its own check channel, titled
with the notification title preference. Enable the check rule to hear it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var n domain.Notification
		if err := callDaemon(cmd.Context(), http.MethodPost, "/v1/check", nil, &n); err != nil {
			return err
		}
		out.Success("Posted %q on %s/%s", n.Title, n.PackageName, n.ChannelID)
		return nil
	},
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Show or change when the running daemon may speak",
}

var gateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the speech gate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var st gate.State
		if err := callDaemon(cmd.Context(), http.MethodGet, "/v1/gate", nil, &st); err != nil {
			return err
		}
		out.Gate(st)
		return nil
	},
}

var gateSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the ringer mode, do-not-disturb or quiet hours",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		body := map[string]any{}
		flags := cmd.Flags()
		if flags.Changed("ringer") {
			body["ringer_mode"] = gateRinger
		}
		if flags.Changed("dnd") {
			body["do_not_disturb"] = gateDND
		}
		if flags.Changed("quiet") {
			body["quiet_hours"] = gateQuiet
		}
		if len(body) == 0 {
			return fmt.Errorf("nothing to change (use --ringer, --dnd or --quiet)")
		}
		var st gate.State
		if err := callDaemon(cmd.Context(), http.MethodPut, "/v1/gate", body, &st); err != nil {
			return err
		}
		out.Gate(st)
		return nil
	},
}

func init() {
	gateSetCmd.Flags().StringVar(&gateRinger, "ringer", "", "normal, vibrate or silent")
	gateSetCmd.Flags().BoolVar(&gateDND, "dnd", false, "do not disturb")
	gateSetCmd.Flags().StringVar(&gateQuiet, "quiet", "", `quiet hours "HH:MM-HH:MM", empty to clear`)
	gateCmd.AddCommand(gateShowCmd, gateSetCmd)
}

// callDaemon sends a JSON request to the daemon at cfg.ListenAddr.
func callDaemon(ctx context.Context, method, path string, in, dst any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, "http://"+cfg.ListenAddr+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is `smartnotifier serve` running?): %w", cfg.ListenAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("daemon: %s", e.Error)
		}
		return fmt.Errorf("daemon: %s", resp.Status)
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
