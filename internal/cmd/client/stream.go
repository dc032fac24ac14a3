package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewStreamCommand constructs the `stream` command group, a thin client of
// the HTTP API.
func NewStreamCommand(baseURL BaseURLFunc) *cobra.Command {
	streamCmd := &cobra.Command{Use: "stream", Short: "Stream operations over the HTTP API"}
	streamCmd.AddCommand(
		newStreamListCommand(baseURL),
		newStreamInsertCommand(baseURL),
		newStreamEntriesCommand(baseURL),
		newStreamWaitCommand(baseURL),
	)
	return streamCmd
}

// NewStatusCommand prints the node status document.
func NewStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show node status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return doJSON(cmd, http.MethodGet, baseURL()+"/v1/status", nil)
		},
	}
}

func newStreamListCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List declared streams",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return doJSON(cmd, http.MethodGet, baseURL()+"/v1/streams", nil)
		},
	}
}

func newStreamInsertCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Insert a JSON value into a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			value, _ := cmd.Flags().GetString("value")
			if !json.Valid([]byte(value)) {
				return fmt.Errorf("--value must be a JSON document, got %q", value)
			}
			return doJSON(cmd, http.MethodPost, streamURL(baseURL, name, "insert", nil), []byte(value))
		},
	}
	cmd.Flags().String("name", "", "Stream name")
	cmd.Flags().String("value", "", `JSON value, e.g. 42 or '"text"'`)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func newStreamEntriesCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List buffered entries of a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			from, _ := cmd.Flags().GetUint64("from")
			limit, _ := cmd.Flags().GetInt("limit")
			q := url.Values{}
			if from > 0 {
				q.Set("from", strconv.FormatUint(from, 10))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			return doJSON(cmd, http.MethodGet, streamURL(baseURL, name, "entries", q), nil)
		},
	}
	cmd.Flags().String("name", "", "Stream name")
	cmd.Flags().Uint64("from", 0, "First log index")
	cmd.Flags().Int("limit", 0, "Maximum entries")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newStreamWaitCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until a log index has been applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			index, _ := cmd.Flags().GetUint64("index")
			timeoutMs, _ := cmd.Flags().GetInt("timeout-ms")
			q := url.Values{"index": {strconv.FormatUint(index, 10)}}
			if timeoutMs > 0 {
				q.Set("timeoutMs", strconv.Itoa(timeoutMs))
			}
			return doJSON(cmd, http.MethodGet, streamURL(baseURL, name, "wait", q), nil)
		},
	}
	cmd.Flags().String("name", "", "Stream name")
	cmd.Flags().Uint64("index", 0, "Global log index")
	cmd.Flags().Int("timeout-ms", 0, "Server-side wait timeout in ms")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func streamURL(baseURL BaseURLFunc, name, op string, q url.Values) string {
	u := baseURL() + "/v1/streams/" + url.PathEscape(name) + "/" + op
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// doJSON performs the request and pretty-prints the JSON response. Non-2xx
// responses become errors carrying the server's message.
func doJSON(cmd *cobra.Command, method, target string, body []byte) error {
	req, err := http.NewRequestWithContext(cmd.Context(), method, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("%s", resp.Status)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		_, err = cmd.OutOrStdout().Write(b)
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out.String())
	return err
}
