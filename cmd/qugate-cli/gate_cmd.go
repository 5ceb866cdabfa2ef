package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"qugate/crypto"
	"qugate/native/gates"
)

func runGateCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, gateUsage())
		return 1
	}
	switch args[0] {
	case "create":
		return runGateCreate(args[1:], stdout, stderr)
	case "send":
		return runGateSend(args[1:], stdout, stderr)
	case "close":
		return runGateClose(args[1:], stdout, stderr)
	case "update":
		return runGateUpdate(args[1:], stdout, stderr)
	case "get":
		return runGateGet(args[1:], stdout, stderr)
	case "count":
		return runSimpleCall("gate_count", nil, false, stdout, stderr)
	case "fees":
		return runSimpleCall("gate_fees", nil, false, stdout, stderr)
	case "events":
		return runGateEvents(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown gate subcommand: %s\n\n%s\n", args[0], gateUsage())
		return 1
	}
}

func gateUsage() string {
	return strings.TrimSpace(`
Usage: qugate-cli gate <subcommand> [flags]

  create --paid N --mode split|round_robin|threshold|random|conditional --recipients A,B [--ratios 1,2] [--threshold N] [--allowed S1,S2]
  send   --id N --amount N
  close  --id N [--reward N]
  update --id N --recipients A,B [--ratios 1,2] [--threshold N] [--allowed S1,S2] [--reward N]
  get    --id N
  count
  fees
  events [--id N] [--type gate.forwarded] [--after SEQ] [--limit N]
`)
}

func newGateFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("gate "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// configFlags registers the flags shared by create and update.
type configFlags struct {
	recipients *string
	ratios     *string
	threshold  *uint64
	allowed    *string
}

func registerConfigFlags(fs *flag.FlagSet) configFlags {
	return configFlags{
		recipients: fs.String("recipients", "", "comma-separated recipient identities"),
		ratios:     fs.String("ratios", "", "comma-separated split ratios"),
		threshold:  fs.Uint64("threshold", 0, "threshold amount"),
		allowed:    fs.String("allowed", "", "comma-separated allowed sender identities"),
	}
}

func (f configFlags) params() (map[string]any, error) {
	recipients, err := parseIdentityList(*f.recipients)
	if err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}
	allowed, err := parseIdentityList(*f.allowed)
	if err != nil {
		return nil, fmt.Errorf("allowed: %w", err)
	}
	ratios, err := parseUintList(*f.ratios)
	if err != nil {
		return nil, fmt.Errorf("ratios: %w", err)
	}
	out := map[string]any{"recipients": recipients}
	if len(ratios) > 0 {
		out["ratios"] = ratios
	}
	if *f.threshold > 0 {
		out["threshold"] = *f.threshold
	}
	if len(allowed) > 0 {
		out["allowedSenders"] = allowed
	}
	return out, nil
}

func runGateCreate(args []string, stdout, stderr io.Writer) int {
	fs := newGateFlagSet("create", stderr)
	paid := fs.Uint64("paid", 0, "amount attached to cover the creation fee")
	mode := fs.String("mode", "", "distribution mode")
	cfg := registerConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	parsed, err := gates.ParseMode(*mode)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	params, err := cfg.params()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	params["paid"] = *paid
	params["mode"] = parsed.String()
	return runSimpleCall("gate_create", params, true, stdout, stderr)
}

func runGateSend(args []string, stdout, stderr io.Writer) int {
	fs := newGateFlagSet("send", stderr)
	id := fs.Uint64("id", 0, "gate id")
	amount := fs.Uint64("amount", 0, "amount to route")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *id == 0 {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 1
	}
	return runSimpleCall("gate_send", map[string]any{"gateId": *id, "amount": *amount}, true, stdout, stderr)
}

func runGateClose(args []string, stdout, stderr io.Writer) int {
	fs := newGateFlagSet("close", stderr)
	id := fs.Uint64("id", 0, "gate id")
	reward := fs.Uint64("reward", 0, "amount attached to the call, refunded")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *id == 0 {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 1
	}
	return runSimpleCall("gate_close", map[string]any{"gateId": *id, "reward": *reward}, true, stdout, stderr)
}

func runGateUpdate(args []string, stdout, stderr io.Writer) int {
	fs := newGateFlagSet("update", stderr)
	id := fs.Uint64("id", 0, "gate id")
	reward := fs.Uint64("reward", 0, "amount attached to the call, refunded")
	cfg := registerConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *id == 0 {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 1
	}
	params, err := cfg.params()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	params["gateId"] = *id
	params["reward"] = *reward
	return runSimpleCall("gate_update", params, true, stdout, stderr)
}

func runGateGet(args []string, stdout, stderr io.Writer) int {
	fs := newGateFlagSet("get", stderr)
	id := fs.Uint64("id", 0, "gate id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return runSimpleCall("gate_get", map[string]any{"gateId": *id}, false, stdout, stderr)
}

func runGateEvents(args []string, stdout, stderr io.Writer) int {
	fs := newGateFlagSet("events", stderr)
	id := fs.Uint64("id", 0, "only events for this gate")
	kind := fs.String("type", "", "only events of this type")
	after := fs.Uint64("after", 0, "only events after this sequence number")
	limit := fs.Int("limit", 0, "maximum events to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	params := map[string]any{}
	if *id > 0 {
		params["gateId"] = *id
	}
	if *kind != "" {
		params["type"] = *kind
	}
	if *after > 0 {
		params["afterSeq"] = *after
	}
	if *limit > 0 {
		params["limit"] = *limit
	}
	return runSimpleCall("gate_events", params, false, stdout, stderr)
}

func runEpochCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 || args[0] != "end" {
		fmt.Fprintln(stderr, "Usage: qugate-cli epoch end")
		return 1
	}
	return runSimpleCall("gate_endEpoch", nil, true, stdout, stderr)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: qugate-cli balance <identity>")
		return 1
	}
	id, err := crypto.ParseIdentity(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return runSimpleCall("ledger_balance", map[string]any{"identity": id}, false, stdout, stderr)
}

func runSend(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	to := fs.String("to", "", "recipient identity")
	amount := fs.Uint64("amount", 0, "amount to transfer")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	id, err := crypto.ParseIdentity(*to)
	if err != nil {
		fmt.Fprintf(stderr, "Error: --to: %v\n", err)
		return 1
	}
	if *amount == 0 {
		fmt.Fprintln(stderr, "Error: --amount must be positive")
		return 1
	}
	return runSimpleCall("ledger_send", map[string]any{"to": id, "amount": *amount}, true, stdout, stderr)
}

func parseIdentityList(raw string) ([]crypto.Identity, error) {
	var out []crypto.Identity
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := crypto.ParseIdentity(part)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func parseUintList(raw string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}
