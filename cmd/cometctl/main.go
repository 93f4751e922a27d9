package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/comet/internal/api"
	"github.com/matheus3301/comet/internal/client"
	"github.com/matheus3301/comet/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fatalf("error: %v\n", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(profile.SocketPath(profileName))
	if err != nil {
		fatalf("error: cannot connect to daemon for profile %q: %v\n", profileName, err)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "send":
		cmdSend(ctx, c, args[1:], *jsonFlag)
	case "history":
		cmdHistory(ctx, c, *jsonFlag)
	case "contacts":
		cmdContacts(ctx, c, args[1:], *jsonFlag)
	case "qr":
		cmdQR(ctx, c, args[1:], *jsonFlag)
	case "push":
		if len(args) < 2 || args[1] != "log" {
			fatalf("usage: cometctl push log\n")
		}
		cmdPushLog(ctx, c, *jsonFlag)
	case "token":
		cmdToken(ctx, c, args[1:], *jsonFlag)
	case "transport":
		if len(args) < 3 || args[1] != "set" {
			fatalf("usage: cometctl transport set <sms|bluetooth|auto> [fallback]\n")
		}
		fallback := ""
		if len(args) > 3 {
			fallback = args[3]
		}
		cmdTransportSet(ctx, c, args[2], fallback, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: cometctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                                 Show daemon status")
	fmt.Fprintln(os.Stderr, "  send url <to> <url> [text...]          Share a link")
	fmt.Fprintln(os.Stderr, "  send geo <to> <lat> <lng> [name...]    Share a location")
	fmt.Fprintln(os.Stderr, "  send text <to> <line...>               Send text lines")
	fmt.Fprintln(os.Stderr, "  history                                Show received messages")
	fmt.Fprintln(os.Stderr, "  contacts list                          List contacts")
	fmt.Fprintln(os.Stderr, "  contacts add <label> <number> [type]   Add a contact (phone|bluetooth)")
	fmt.Fprintln(os.Stderr, "  contacts remove <number>               Remove a contact")
	fmt.Fprintln(os.Stderr, "  qr list                                List paired devices")
	fmt.Fprintln(os.Stderr, "  qr add <name> <token>                  Pair a device by push token")
	fmt.Fprintln(os.Stderr, "  push log                               Show logged push messages")
	fmt.Fprintln(os.Stderr, "  token show                             Show this device's push token")
	fmt.Fprintln(os.Stderr, "  token qr                               Render the push token as a QR code")
	fmt.Fprintln(os.Stderr, "  token set <token>                      Store this device's push token")
	fmt.Fprintln(os.Stderr, "  transport set <mode> [fallback]        Change the transport policy")
	fmt.Fprintln(os.Stderr, "  watch                                  Stream daemon events")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

// call runs a unary method and exits with the server's message on failure.
func call(ctx context.Context, c *client.Client, method string, req, resp any) {
	if err := c.Call(ctx, method, req, resp); err != nil {
		if st, ok := grpcstatus.FromError(err); ok {
			if st.Code() == codes.Unavailable {
				fatalf("error: daemon not running: %s\n", st.Message())
			}
			fatalf("error: %s\n", st.Message())
		}
		fatalf("error: %v\n", err)
	}
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	var resp api.StatusResponse
	call(ctx, c, api.MethodGetStatus, nil, &resp)
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile:   %s\n", resp.Profile)
	fallback := resp.Fallback
	if fallback == "" {
		fallback = "none"
	}
	fmt.Printf("Transport: %s (fallback %s)\n", resp.Mode, fallback)
	if resp.LinkAddress != "" {
		fmt.Printf("Bluetooth: %s %s\n", resp.BluetoothLink, resp.LinkAddress)
	} else {
		fmt.Printf("Bluetooth: %s\n", resp.BluetoothLink)
	}
	fmt.Printf("Uptime:    %dms\n", resp.UptimeMs)
}

func cmdSend(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	if len(args) < 2 {
		fatalf("usage: cometctl send <url|geo|text> <to> ...\n")
	}
	req := api.SendRequest{To: args[1]}
	rest := args[2:]
	switch args[0] {
	case "url":
		if len(rest) == 0 {
			fatalf("usage: cometctl send url <to> <url> [text...]\n")
		}
		req.Kind = api.SendKindURL
		req.URL = rest[0]
		if len(rest) > 1 {
			req.Text = []string{strings.Join(rest[1:], " ")}
		}
	case "geo":
		if len(rest) < 2 {
			fatalf("usage: cometctl send geo <to> <lat> <lng> [name...]\n")
		}
		req.Kind = api.SendKindGeo
		req.Lat, req.Lng = rest[0], rest[1]
		req.LocationName = strings.Join(rest[2:], " ")
	case "text":
		if len(rest) == 0 {
			fatalf("usage: cometctl send text <to> <line...>\n")
		}
		req.Kind = api.SendKindRaw
		req.Text = rest
	default:
		fatalf("unknown send kind: %s\n", args[0])
	}

	var resp api.SendResponse
	call(ctx, c, api.MethodSend, req, &resp)
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Queued %s\n", resp.ClientMsgID)
}

func cmdHistory(ctx context.Context, c *client.Client, jsonOut bool) {
	var resp api.HistoryResponse
	call(ctx, c, api.MethodListHistory, nil, &resp)
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Messages) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range resp.Messages {
		when := "-"
		if m.ReceivedAt > 0 {
			when = time.UnixMilli(m.ReceivedAt).Format(time.DateTime)
		}
		fmt.Printf("%s  %s\n", when, m.From)
		for _, line := range m.TextList {
			fmt.Printf("    %s\n", line)
		}
		if m.URL != "" {
			fmt.Printf("    %s\n", m.URL)
		}
		if m.Lat != "" || m.Lng != "" {
			fmt.Printf("    %s,%s %s\n", m.Lat, m.Lng, m.LocationName)
		}
	}
}

func cmdContacts(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "list":
		var resp api.ContactsResponse
		call(ctx, c, api.MethodListContacts, nil, &resp)
		if jsonOut {
			outputJSON(resp)
			return
		}
		if len(resp.Contacts) == 0 {
			fmt.Println("No contacts.")
			return
		}
		for _, e := range resp.Contacts {
			kind := string(e.Type)
			if kind == "" {
				kind = "-"
			}
			fmt.Printf("%-20s %-20s %s\n", e.Label, e.Number, kind)
		}
	case "add":
		if len(args) < 3 {
			fatalf("usage: cometctl contacts add <label> <number> [type]\n")
		}
		req := api.ContactRequest{Label: args[1], Number: args[2]}
		if len(args) > 3 {
			req.Type = args[3]
		}
		var resp api.ContactsResponse
		call(ctx, c, api.MethodAddContact, req, &resp)
		if jsonOut {
			outputJSON(resp)
			return
		}
		fmt.Printf("Saved %s (%d contacts)\n", req.Label, len(resp.Contacts))
	case "remove":
		if len(args) < 2 {
			fatalf("usage: cometctl contacts remove <number>\n")
		}
		var resp api.RemoveContactResponse
		call(ctx, c, api.MethodRemoveContact, api.RemoveContactRequest{Number: args[1]}, &resp)
		if jsonOut {
			outputJSON(resp)
			return
		}
		if resp.Removed {
			fmt.Printf("Removed %s\n", args[1])
		} else {
			fmt.Printf("No contact %s\n", args[1])
		}
	default:
		fatalf("unknown contacts subcommand: %s\n", sub)
	}
}

func cmdQR(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "list":
		var resp api.QRContactsResponse
		call(ctx, c, api.MethodListQRContacts, nil, &resp)
		if jsonOut {
			outputJSON(resp)
			return
		}
		if len(resp.Contacts) == 0 {
			fmt.Println("No paired devices.")
			return
		}
		names := make([]string, 0, len(resp.Contacts))
		for name := range resp.Contacts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-20s %s\n", name, abbreviate(resp.Contacts[name]))
		}
	case "add":
		if len(args) < 3 {
			fatalf("usage: cometctl qr add <name> <token>\n")
		}
		var resp api.QRContactResponse
		call(ctx, c, api.MethodSaveQRContact, api.QRContactRequest{Name: args[1], Token: args[2]}, &resp)
		if jsonOut {
			outputJSON(resp)
			return
		}
		fmt.Printf("Paired %s\n", args[1])
	default:
		fatalf("unknown qr subcommand: %s\n", sub)
	}
}

func cmdPushLog(ctx context.Context, c *client.Client, jsonOut bool) {
	var resp api.PushLogResponse
	call(ctx, c, api.MethodListPushLog, nil, &resp)
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Entries) == 0 {
		fmt.Println("No push messages.")
		return
	}
	for _, e := range resp.Entries {
		fmt.Printf("%s  %-20s %s\n", time.UnixMilli(e.Timestamp).Format(time.DateTime), e.From, e.Body)
	}
}

func cmdToken(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "set":
		if len(args) < 2 {
			fatalf("usage: cometctl token set <token>\n")
		}
		call(ctx, c, api.MethodSetPushToken, api.PushTokenMessage{Token: args[1]}, nil)
		fmt.Println("Token saved.")
	case "show", "qr":
		var resp api.PushTokenMessage
		call(ctx, c, api.MethodGetPushToken, nil, &resp)
		if resp.Token == "" {
			fatalf("error: no push token stored; run cometctl token set <token>\n")
		}
		if jsonOut {
			outputJSON(resp)
			return
		}
		if sub == "show" {
			fmt.Println(resp.Token)
			return
		}
		qr, err := qrcode.New(resp.Token, qrcode.Medium)
		if err != nil {
			fatalf("error: generate QR: %v\n", err)
		}
		fmt.Print(qr.ToSmallString(false))
	default:
		fatalf("unknown token subcommand: %s\n", sub)
	}
}

func cmdTransportSet(ctx context.Context, c *client.Client, mode, fallback string, jsonOut bool) {
	var resp api.StatusResponse
	call(ctx, c, api.MethodSetTransport, api.TransportRequest{Mode: mode, Fallback: fallback}, &resp)
	if jsonOut {
		outputJSON(resp)
		return
	}
	if resp.Fallback == "" {
		fmt.Printf("Transport: %s\n", resp.Mode)
		return
	}
	fmt.Printf("Transport: %s (fallback %s)\n", resp.Mode, resp.Fallback)
}

func cmdWatch(c *client.Client, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stream, err := c.Comet.WatchEvents(ctx)
	if err != nil {
		fatalf("error: %v\n", err)
	}
	for {
		env, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			fatalf("error: %v\n", err)
		}
		if jsonOut {
			outputJSON(env)
			continue
		}
		payload, _ := json.Marshal(env.Payload)
		at := time.UnixMilli(env.OccurredAtUnixMs).Format(time.TimeOnly)
		fmt.Printf("%s  %-22s %s\n", at, env.Kind, payload)
	}
}

func abbreviate(token string) string {
	if len(token) <= 16 {
		return token
	}
	return token[:8] + "..." + token[len(token)-8:]
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
