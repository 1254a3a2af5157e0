package kitchen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tableside/internal/api"
	"tableside/internal/app"
	"tableside/internal/common/logger"
	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/orders"
	"tableside/internal/realtime"
)

const usage = `commands:
  orders               list open orders, oldest first
  reload               refetch open orders
  prepare <order>      start preparing
  serve <order>        serve the whole order
  line <order> <n>     serve line n (counting from 1)
  pay <order>          mark paid
  history <order>      show the status log
order ids may be shortened to any unique prefix`

var errUsage = errors.New("unknown command, try help")

// Display is the kitchen's live view of a branch's open orders.
type Display struct {
	branchID string
	client   *api.Client
	book     *orders.Book
	kitchen  *orders.Kitchen
}

func NewDisplay(branchID string, client *api.Client, lg *logger.Logger) *Display {
	if lg == nil {
		lg = logger.Nop()
	}
	book := orders.NewBook(lg)
	book.OnChange(func(o domain.Order) {
		lg.Info("order_changed", map[string]any{"order_id": o.ID, "table_id": o.Table.ID(), "status": o.Status})
	})
	return &Display{
		branchID: branchID,
		client:   client,
		book:     book,
		kitchen:  orders.NewKitchen(client, book, "kitchen", lg),
	}
}

func (d *Display) Load(ctx context.Context) error { return d.kitchen.Load(ctx, d.branchID) }

// Subscribe follows newOrder and status events on the branch room.
func (d *Display) Subscribe(s realtime.Subscriber) { d.book.Subscribe(s) }

func (d *Display) Exec(ctx context.Context, args []string) (string, error) {
	if args[0] == "help" {
		return usage, nil
	}
	switch args[0] {
	case "orders":
		return d.render(), nil
	case "reload":
		if err := d.Load(ctx); err != nil {
			return "", err
		}
		return d.render(), nil
	}
	if len(args) < 2 {
		return "", errUsage
	}
	id, err := d.resolve(args[1])
	if err != nil {
		return "", err
	}

	var o domain.Order
	switch args[0] {
	case "prepare":
		o, err = d.kitchen.StartPreparing(ctx, id)
	case "serve":
		o, err = d.kitchen.MarkServed(ctx, id)
	case "pay":
		o, err = d.kitchen.MarkPaid(ctx, id)
	case "line":
		if len(args) != 3 {
			return "", errUsage
		}
		n, perr := strconv.Atoi(args[2])
		if perr != nil || n < 1 {
			return "", fmt.Errorf("line %q: want a number from 1", args[2])
		}
		o, err = d.kitchen.MarkLineServed(ctx, id, n-1)
	case "history":
		entries, herr := d.client.Timeline(ctx, id, 0, 0)
		if herr != nil {
			return "", herr
		}
		return renderTimeline(entries), nil
	default:
		return "", errUsage
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("order %s is %s", short(o.ID), o.Status), nil
}

// resolve expands a unique id prefix against the orders on screen.
func (d *Display) resolve(ref string) (string, error) {
	if _, ok := d.book.Get(ref); ok {
		return ref, nil
	}
	var match string
	for _, o := range d.book.List() {
		if strings.HasPrefix(o.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("order prefix %q is ambiguous", ref)
			}
			match = o.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", orders.ErrUnknownOrder, ref)
	}
	return match, nil
}

func (d *Display) render() string {
	open := d.book.List(domain.OrderPending, domain.OrderPreparing, domain.OrderServed)
	if len(open) == 0 {
		return "no open orders"
	}
	var b strings.Builder
	for i, o := range open {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-9s  table %s  %s", short(o.ID), o.Status, o.Table.ID(), o.CreatedAt.Format("15:04"))
		for n, l := range o.Lines {
			fmt.Fprintf(&b, "\n    %d. %dx %s  [%s]", n+1, l.Quantity, l.Name, l.Status)
			if l.Note != "" {
				fmt.Fprintf(&b, "  %q", l.Note)
			}
		}
	}
	return b.String()
}

func renderTimeline(entries []domain.StatusLogEntry) string {
	if len(entries) == 0 {
		return "no history"
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-9s  by %s", e.ChangedAt.Format("15:04:05"), e.Status, e.ChangedBy)
	}
	return b.String()
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run opens the kitchen display for the configured branch.
func Run(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	if err := cfg.RequireClient(); err != nil {
		return err
	}
	link, err := app.Dial(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer link.Close()

	branchID := cfg.Client.BranchID
	display := NewDisplay(branchID, link.API, lg)
	if err := display.Load(ctx); err != nil {
		return err
	}
	link.Track(ctx, domain.RoomBranch, branchID, display.Subscribe, display.Load)

	lg.Info("kitchen_ready", map[string]any{"branch_id": branchID, "realtime": link.Online()})
	fmt.Println(display.render())
	return app.Console(ctx, os.Stdin, os.Stdout, display.Exec, lg)
}
