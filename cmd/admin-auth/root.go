package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipico/admin-auth/internal/config"
	"github.com/sipico/admin-auth/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	metrics.Version = version

	root := &cobra.Command{
		Use:           "admin-auth",
		Short:         "Admin authentication core: tokens, credentials and field permissions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newRegisterAdminCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newUserCmd())
	root.AddCommand(newFieldsCmd())
	return root
}

// withApp loads config from the environment, wires an app for the duration
// of fn and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck
	return fn(a)
}

func newHealthCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the local /health endpoint (container HEALTHCHECK)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				url = localURL(cfg.ListenAddr) + "/health"
			}
			return checkHealth(url)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Health URL (default derived from LISTEN_ADDR)")
	return cmd
}

func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func checkHealth(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	//nolint:errcheck // Response body close errors are unrecoverable in health check
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// readSecret returns the first line of in, used for passwords passed on stdin.
func readSecret(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password on stdin")
	}
	return line, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
