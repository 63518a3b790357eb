package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"markestedt/tokenspark/config"
	"markestedt/tokenspark/pipeline"
	"markestedt/tokenspark/storage"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Trigger the running daemon as if the hotkey was pressed",
	RunE: func(cmd *cobra.Command, args []string) error {
		modeFlag, _ := cmd.Flags().GetString("mode")
		profile, _ := cmd.Flags().GetString("profile")

		mode, err := pipeline.ParseMode(modeFlag)
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cfg.Web.Enabled {
			return fmt.Errorf("the dashboard is disabled, enable [web] to trigger from the command line")
		}
		return postInvoke(cmd.Context(), fmt.Sprintf("http://localhost:%d", cfg.Web.Port), mode, profile, cmd.OutOrStdout())
	},
}

// postInvoke asks the daemon at base to start an invocation
func postInvoke(ctx context.Context, base string, mode pipeline.Mode, profile string, out io.Writer) error {
	q := url.Values{"mode": {mode.String()}}
	if profile != "" {
		q.Set("profile", profile)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/invoke?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable (is tokenspark running?): %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Fprintf(out, "Invocation started (%s)\n", mode)
		return nil
	case http.StatusConflict:
		return fmt.Errorf("an invocation is already in progress")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent invocations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		dir, err := config.Dir()
		if err != nil {
			return err
		}
		db, err := storage.Open(dir)
		if err != nil {
			return err
		}
		defer db.Close()

		invocations, err := db.GetInvocations(cmd.Context(), limit, 0)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(invocations)
		}
		printHistory(cmd.OutOrStdout(), invocations)
		return nil
	},
}

func printHistory(out io.Writer, invocations []storage.Invocation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tMODE\tPROFILE\tMODEL\tCHARS\tTOTAL\tOUTCOME")
	for _, inv := range invocations {
		outcome := "ok"
		if !inv.Success {
			outcome = inv.ErrorKind + " (" + inv.FailedStage + ")"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d/%d\t%dms\t%s\n",
			inv.ID, inv.Timestamp.Local().Format("2006-01-02 15:04:05"), inv.Mode, inv.Profile,
			inv.Model, inv.InputChars, inv.OutputChars, inv.TotalMs, outcome)
	}
	w.Flush()
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the stored API key",
}

var secretSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the API key read from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		key, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := config.NewSecretStore(dir).SaveSecret(key); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key saved")
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		return config.NewSecretStore(dir).DeleteSecret()
	},
}

// readSecret reads the first line of r
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no API key on stdin")
	}
	return line, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	invokeCmd.Flags().String("mode", "replace", "replace or display")
	invokeCmd.Flags().String("profile", "", "Profile ID or name, defaults to the active profile")
	historyCmd.Flags().Int("limit", 20, "Number of invocations to show")
	historyCmd.Flags().Bool("json", false, "Print JSON")

	secretCmd.AddCommand(secretSetCmd, secretDeleteCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(invokeCmd, historyCmd, secretCmd, configCmd)
}
