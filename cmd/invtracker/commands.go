package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/app"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
)

type cli struct {
	app    *app.App
	stdout io.Writer
	stderr io.Writer
}

type commandFunc func(ctx context.Context, c *cli, args []string) int

var commands = map[string]commandFunc{
	"inventory": runInventory,
	"borrow":    runBorrow,
	"return":    runReturn,
	"borrowed":  runBorrowed,
	"stats":     runStats,
	"ping":      runPing,
	"sync":      runSync,
	"cache":     runCache,
	"watch":     runWatch,
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) print(v any) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(c.stderr, "failed to write output: %v\n", err)
		return exitError
	}
	return exitOK
}

func (c *cli) fail(err error) int {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		fmt.Fprintf(c.stderr, "error: %s\n", coreErr.Message)
	} else {
		fmt.Fprintf(c.stderr, "error: %v\n", err)
	}
	return exitError
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK, false
		}
		return exitUsage, false
	}
	return 0, true
}

func runInventory(ctx context.Context, c *cli, args []string) int {
	fs := c.flagSet("inventory")
	category := fs.String("type", "", "Only show this equipment type")
	status := fs.String("status", "", "Only show equipment with this status (available, borrowed)")
	refresh := fs.Bool("refresh", false, "Bypass the cache and fetch again")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	coord := c.app.Coordinator()
	var (
		inv core.Inventory
		err error
	)
	if *refresh {
		inv, err = coord.ForceRefresh(ctx)
	} else {
		inv, err = coord.GetInventory(ctx)
	}
	if err != nil {
		return c.fail(err)
	}
	return c.print(selectInventory(inv, *category, *status))
}

// selectInventory narrows inv to one category and/or status.
func selectInventory(inv core.Inventory, category, status string) core.Inventory {
	if category == "" && status == "" {
		return inv
	}
	out := core.Inventory{}
	for name, items := range inv {
		if category != "" && !strings.EqualFold(name, category) {
			continue
		}
		kept := make([]core.EquipmentRecord, 0, len(items))
		for _, item := range items {
			if status == "" || strings.EqualFold(item.Status, status) {
				kept = append(kept, item)
			}
		}
		out[name] = kept
	}
	return out
}

// writeResult is printed for borrow and return.
type writeResult struct {
	Queued  bool            `json:"queued"`
	ID      string          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

func runBorrow(ctx context.Context, c *cli, args []string) int {
	fs := c.flagSet("borrow")
	var req core.BorrowRequest
	fs.StringVar(&req.BorrowerName, "borrower", "", "Borrower name (required)")
	fs.StringVar(&req.EquipmentType, "type", "", "Equipment type (required)")
	fs.StringVar(&req.EquipmentName, "name", "", "Equipment name (required)")
	fs.StringVar(&req.BorrowCondition, "condition", "good", "Condition at pickup")
	fs.StringVar(&req.EventName, "event", "", "Event the equipment is used for")
	fs.StringVar(&req.PickupDate, "pickup-date", "", "Pickup date (YYYY-MM-DD)")
	fs.StringVar(&req.PickupTime, "pickup-time", "", "Pickup time (HH:MM)")
	fs.StringVar(&req.ExpectedReturnDate, "return-date", "", "Expected return date (YYYY-MM-DD)")
	fs.StringVar(&req.BorrowNotes, "notes", "", "Notes")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if req.BorrowerName == "" || req.EquipmentType == "" || req.EquipmentName == "" {
		fmt.Fprintln(c.stderr, "borrow: -borrower, -type and -name are required")
		return exitUsage
	}

	env, err := c.app.Coordinator().RecordBorrow(ctx, req)
	if err != nil {
		return c.queueOnNetworkFailure(ctx, err, core.ActionBorrow, req)
	}
	return c.print(writeResult{Result: env.Result, Message: env.Message})
}

func runReturn(ctx context.Context, c *cli, args []string) int {
	fs := c.flagSet("return")
	var req core.ReturnRequest
	fs.StringVar(&req.ReturnBorrowerName, "borrower", "", "Name of the person returning (required)")
	fs.StringVar(&req.ReturnEquipmentName, "name", "", "Equipment name (required)")
	fs.StringVar(&req.ReturnCondition, "condition", "good", "Condition at return")
	fs.StringVar(&req.ReturnDate, "date", "", "Return date (YYYY-MM-DD)")
	fs.StringVar(&req.ReturnTime, "time", "", "Return time (HH:MM)")
	fs.StringVar(&req.ReturnNotes, "notes", "", "Notes")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if req.ReturnBorrowerName == "" || req.ReturnEquipmentName == "" {
		fmt.Fprintln(c.stderr, "return: -borrower and -name are required")
		return exitUsage
	}

	env, err := c.app.Coordinator().RecordReturn(ctx, req)
	if err != nil {
		return c.queueOnNetworkFailure(ctx, err, core.ActionReturn, req)
	}
	return c.print(writeResult{Result: env.Result, Message: env.Message})
}

// queueOnNetworkFailure keeps writes that failed to reach the endpoint for
// a later sync. Any other failure is reported.
func (c *cli) queueOnNetworkFailure(ctx context.Context, err error, action string, fields any) int {
	if !core.IsNetworkFailure(err) {
		return c.fail(err)
	}
	payload, perr := core.NewPayload(action, fields)
	if perr != nil {
		return c.fail(perr)
	}
	queued := c.app.Coordinator().QueueRequest(ctx, payload)
	return c.print(writeResult{
		Queued:  true,
		ID:      queued.ID,
		Message: "endpoint unreachable, request queued; run 'invtracker sync' later",
	})
}

func runBorrowed(ctx context.Context, c *cli, args []string) int {
	if code, ok := parseFlags(c.flagSet("borrowed"), args); !ok {
		return code
	}
	items, err := c.app.Coordinator().GetBorrowedEquipment(ctx)
	if err != nil {
		return c.fail(err)
	}
	return c.print(items)
}

func runStats(ctx context.Context, c *cli, args []string) int {
	if code, ok := parseFlags(c.flagSet("stats"), args); !ok {
		return code
	}
	coord := c.app.Coordinator()

	out := map[string]any{
		"client": coord.Stats(),
		"cache":  c.app.Store().Stats(ctx),
	}
	if st, err := coord.GetStats(ctx); err != nil {
		out["inventory_error"] = err.Error()
	} else {
		out["inventory"] = st
	}
	if last, ok := coord.LastUpdate(ctx); ok {
		out["last_update"] = last
	}
	return c.print(out)
}

func runPing(ctx context.Context, c *cli, args []string) int {
	if code, ok := parseFlags(c.flagSet("ping"), args); !ok {
		return code
	}
	online := c.app.Coordinator().TestConnection(ctx)
	code := c.print(map[string]bool{"online": online})
	if !online {
		return exitError
	}
	return code
}

func runSync(ctx context.Context, c *cli, args []string) int {
	if code, ok := parseFlags(c.flagSet("sync"), args); !ok {
		return code
	}
	coord := c.app.Coordinator()
	if !coord.TestConnection(ctx) {
		fmt.Fprintln(c.stderr, "error: endpoint unreachable, queued requests kept")
		return exitError
	}
	res := coord.ProcessQueue(ctx)
	code := c.print(res)
	if res.Failed > 0 {
		return exitError
	}
	return code
}

func runCache(ctx context.Context, c *cli, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(c.stderr, "usage: invtracker cache stats|cleanup|clear")
		return exitUsage
	}
	store := c.app.Store()
	switch args[0] {
	case "stats":
		return c.print(store.Stats(ctx))
	case "cleanup":
		return c.print(map[string]int{"removed": store.Cleanup(ctx)})
	case "clear":
		store.Clear(ctx)
		return c.print(map[string]bool{"cleared": true})
	default:
		fmt.Fprintf(c.stderr, "unknown cache command %q\n", args[0])
		return exitUsage
	}
}

func runWatch(ctx context.Context, c *cli, args []string) int {
	fs := c.flagSet("watch")
	interval := fs.Duration("interval", c.app.Config().UI.AutoRefreshInterval, "Refresh interval")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if *interval <= 0 {
		fmt.Fprintln(c.stderr, "watch: -interval must be positive")
		return exitUsage
	}

	coord := c.app.Coordinator()
	logger := c.app.Logger()
	var last uint64

	refresh := func() {
		var (
			inv core.Inventory
			err error
		)
		if coord.Online() || coord.TestConnection(ctx) {
			inv, err = coord.ForceRefresh(ctx)
		} else {
			inv, err = coord.GetInventory(ctx)
		}
		if err != nil {
			logger.Warn("refresh failed", "error", err)
			return
		}
		if digest := inv.Digest(); digest != last {
			last = digest
			c.print(map[string]any{
				"time":      time.Now().UTC(),
				"stats":     inv.Stats(),
				"inventory": inv,
			})
		}
	}

	refresh()
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return exitOK
		case <-ticker.C:
			refresh()
		}
	}
}
