package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pairvault/gateway/middleware"
	"pairvault/integrations/eventlog"
	"pairvault/integrations/exports"
)

const (
	tokenCommand  = "token"
	callCommand   = "call"
	exportCommand = "export-events"

	defaultURL       = "http://127.0.0.1:8545"
	defaultSecretEnv = "PAIRVAULT_AUTH_SECRET"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	case callCommand:
		err = runCall(os.Args[2:], os.Stdout)
	case exportCommand:
		err = runExport(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: vaultctl <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %s          mint a bearer token for the RPC endpoint\n", tokenCommand)
	fmt.Fprintf(os.Stderr, "  %s           invoke a JSON-RPC method: call <method> [params-json]\n", callCommand)
	fmt.Fprintf(os.Stderr, "  %s  dump the event index as CSV or JSON Lines\n", exportCommand)
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable holding the HMAC secret")
	issuer := fs.String("issuer", "pairvault", "Token issuer")
	subject := fs.String("sub", "", "Caller address the token speaks for")
	admin := fs.Bool("admin", false, "Grant the admin scope")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("environment variable %s is empty", *secretEnv)
	}
	if !common.IsHexAddress(*subject) {
		return fmt.Errorf("-sub %q is not a hex address", *subject)
	}
	var scopes []string
	if *admin {
		scopes = append(scopes, middleware.ScopeAdmin)
	}
	token, err := middleware.IssueToken(secret, *issuer, common.HexToAddress(*subject), scopes, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func runCall(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(callCommand, flag.ContinueOnError)
	url := fs.String("url", defaultURL, "RPC endpoint")
	token := fs.String("token", os.Getenv("PAIRVAULT_TOKEN"), "Bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("method required")
	}
	var params json.RawMessage
	if fs.NArg() > 1 {
		params = json.RawMessage(fs.Arg(1))
		if !json.Valid(params) {
			return fmt.Errorf("params are not valid JSON")
		}
	}
	client := &rpcClient{url: *url, token: *token, http: &http.Client{Timeout: 30 * time.Second}}
	result, err := client.call(context.Background(), fs.Arg(0), params)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, pretty.String())
	return err
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ContinueOnError)
	url := fs.String("url", defaultURL, "RPC endpoint")
	eventType := fs.String("type", "", "Only export this event type")
	pair := fs.String("pair", "", "Only export events for this pair key")
	format := fs.String("format", "csv", "Output format: csv or jsonl")
	output := fs.String("out", "", "Output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client := &rpcClient{url: *url, http: &http.Client{Timeout: 30 * time.Second}}
	entries, err := fetchEvents(context.Background(), client, *eventType, *pair)
	if err != nil {
		return err
	}

	var (
		data     []byte
		checksum string
	)
	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "csv":
		data, checksum, err = exports.EventsCSV(entries)
	case "jsonl":
		data, checksum, err = exports.EventsJSONL(entries)
	default:
		return fmt.Errorf("unsupported format %q", *format)
	}
	if err != nil {
		return err
	}
	if *output == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "wrote %d events to %s (sha256 %s)\n", len(entries), *output, checksum)
	return err
}

// fetchEvents follows the index cursor until the last page.
func fetchEvents(ctx context.Context, client *rpcClient, eventType, pair string) ([]eventlog.Entry, error) {
	var (
		entries []eventlog.Entry
		after   uint64
	)
	for {
		params, err := json.Marshal(map[string]interface{}{
			"type":  eventType,
			"pair":  pair,
			"after": after,
			"limit": eventlog.MaxPageSize,
		})
		if err != nil {
			return nil, err
		}
		raw, err := client.call(ctx, "vault_events", params)
		if err != nil {
			return nil, err
		}
		var page eventlog.Page
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("decode events page: %w", err)
		}
		entries = append(entries, page.Entries...)
		if page.Next == 0 {
			return entries, nil
		}
		after = page.Next
	}
}

type rpcClient struct {
	url   string
	token string
	http  *http.Client
}

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *rpcClient) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if len(params) > 0 {
		req["params"] = []json.RawMessage{params}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var reply rpcReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("%s: %s (code %d)", method, reply.Error.Message, reply.Error.Code)
	}
	return reply.Result, nil
}
