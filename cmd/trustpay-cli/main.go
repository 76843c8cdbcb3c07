package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"trustpay/crypto"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("TRUSTPAY_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8545"
}

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	rest := args[1:]
	switch command {
	case "generate-key":
		generateKey()
	case "create":
		runCreate(rest)
	case "accept":
		runAccept(rest)
	case "decline":
		runSimpleCall("trustpay_decline", rest)
	case "cancel":
		runSimpleCall("trustpay_cancel", rest)
	case "mark-complete":
		runMilestoneCall("trustpay_markComplete", rest, false, false)
	case "approve":
		runMilestoneCall("trustpay_approve", rest, false, false)
	case "dispute":
		runMilestoneCall("trustpay_dispute", rest, true, false)
	case "resolve":
		runMilestoneCall("trustpay_resolve", rest, true, true)
	case "get":
		runGet(rest)
	case "global-state":
		callAndPrint("trustpay_globalState", nil)
	case "balance":
		runBalance(rest)
	case "events":
		runEvents(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: trustpay-cli [--rpc <url>] <command> [flags]

Commands:
  generate-key                      Generate a wallet key and print its address
  create                            Create an escrow contract
  accept                            Accept and fund a pending contract (payer)
  decline                           Decline a pending contract (payer)
  cancel                            Cancel a pending contract (creator)
  mark-complete                     Mark a milestone delivered (recipient)
  approve                           Approve and release a milestone (payer)
  dispute                           Dispute a completed milestone (either party)
  resolve                           Resolve a disputed milestone (authority)
  get                               Fetch a contract by id
  global-state                      Fetch platform aggregates
  balance                           Fetch an account balance
  events                            List recent engine events

Run a command with -h to see its flags.`)
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}
	fileName := "wallet.key"
	if err := os.WriteFile(fileName, key.Bytes(), 0600); err != nil {
		panic(fmt.Sprintf("Failed to save key to %s: %v", fileName, err))
	}
	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your address is: %s\n", key.PubKey().Address().String())
}

// randomSeed derives a contract seed from a fresh UUID so repeated creations
// from the same payer do not collide.
func randomSeed() uint64 {
	id := uuid.New()
	return binary.LittleEndian.Uint64(id[:8])
}

func runCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	caller := fs.String("caller", "", "Caller address (bech32)")
	role := fs.String("role", "payer", "Creator role: payer or recipient")
	counterparty := fs.String("counterparty", "", "Counterparty address (bech32)")
	contractType := fs.String("type", "milestone", "Contract type: one_time or milestone")
	asset := fs.String("asset", "USDC", "Asset symbol")
	title := fs.String("title", "", "Contract title")
	terms := fs.String("terms", "", "Terms and conditions")
	total := fs.String("total", "", "Total amount in smallest units")
	milestones := fs.String("milestones", "", "Semicolon-separated description=amount pairs")
	deadline := fs.Int64("deadline", 30*24*60*60, "Deadline duration in seconds")
	seed := fs.Uint64("seed", 0, "Contract seed (random when omitted)")
	_ = fs.Parse(args)

	if *seed == 0 {
		*seed = randomSeed()
	}
	params := map[string]interface{}{
		"caller":           *caller,
		"seed":             *seed,
		"role":             *role,
		"counterparty":     *counterparty,
		"type":             *contractType,
		"asset":            *asset,
		"title":            *title,
		"terms":            *terms,
		"totalAmount":      *total,
		"deadlineDuration": *deadline,
	}
	if strings.TrimSpace(*milestones) != "" {
		entries := []map[string]string{}
		for _, pair := range strings.Split(*milestones, ";") {
			parts := strings.SplitN(pair, "=", 2)
			if len(parts) != 2 {
				fmt.Fprintf(os.Stderr, "invalid milestone %q, expected description=amount\n", pair)
				os.Exit(1)
			}
			entries = append(entries, map[string]string{
				"description": strings.TrimSpace(parts[0]),
				"amount":      strings.TrimSpace(parts[1]),
			})
		}
		params["milestones"] = entries
	}
	callAndPrint("trustpay_create", params)
}

func runAccept(args []string) {
	fs := flag.NewFlagSet("accept", flag.ExitOnError)
	caller := fs.String("caller", "", "Caller address (bech32)")
	id := fs.String("id", "", "Contract id (hex)")
	deadline := fs.Int64("deadline", 30*24*60*60, "Deadline duration in seconds")
	_ = fs.Parse(args)
	callAndPrint("trustpay_accept", map[string]interface{}{
		"caller":           *caller,
		"id":               *id,
		"deadlineDuration": *deadline,
	})
}

func runSimpleCall(method string, args []string) {
	fs := flag.NewFlagSet(method, flag.ExitOnError)
	caller := fs.String("caller", "", "Caller address (bech32)")
	id := fs.String("id", "", "Contract id (hex)")
	_ = fs.Parse(args)
	callAndPrint(method, map[string]interface{}{"caller": *caller, "id": *id})
}

func runMilestoneCall(method string, args []string, withReason, withResolution bool) {
	fs := flag.NewFlagSet(method, flag.ExitOnError)
	caller := fs.String("caller", "", "Caller address (bech32)")
	id := fs.String("id", "", "Contract id (hex)")
	index := fs.Int("index", 0, "Milestone index (zero-based)")
	reason := fs.String("reason", "", "Dispute or resolution reason")
	resolution := fs.Uint("resolution", 0, "Resolution: 0 payer, 1 recipient, 2 split")
	_ = fs.Parse(args)
	params := map[string]interface{}{
		"caller":         *caller,
		"id":             *id,
		"milestoneIndex": *index,
	}
	if withReason {
		params["reason"] = *reason
	}
	if withResolution {
		params["resolution"] = *resolution
	}
	callAndPrint(method, params)
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	id := fs.String("id", "", "Contract id (hex)")
	_ = fs.Parse(args)
	callAndPrint("trustpay_get", map[string]interface{}{"id": *id})
}

func runBalance(args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	address := fs.String("address", "", "Account address (bech32)")
	asset := fs.String("asset", "USDC", "Asset symbol")
	_ = fs.Parse(args)
	callAndPrint("trustpay_balance", map[string]interface{}{"address": *address, "asset": *asset})
}

func runEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	prefix := fs.String("prefix", "", "Event type prefix filter")
	limit := fs.Int("limit", 50, "Maximum events to return")
	_ = fs.Parse(args)
	callAndPrint("trustpay_listEvents", map[string]interface{}{"prefix": *prefix, "limit": *limit})
}

func callAndPrint(method string, params interface{}) {
	result, err := sendRPCRequest(method, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Println(result)
		return
	}
	fmt.Println(string(pretty))
}

func sendRPCRequest(method string, params interface{}) (json.RawMessage, error) {
	paramList := []interface{}{}
	if params != nil {
		paramList = append(paramList, params)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  paramList,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(rpcAuthToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int             `json:"code"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("invalid response: %w (%s)", err, strings.TrimSpace(string(body)))
	}
	if rpcResp.Error != nil {
		if len(rpcResp.Error.Data) > 0 {
			return nil, fmt.Errorf("%s (code %d): %s", rpcResp.Error.Message, rpcResp.Error.Code, rpcResp.Error.Data)
		}
		return nil, fmt.Errorf("%s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}
	return rpcResp.Result, nil
}
