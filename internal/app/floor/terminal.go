package floor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tableside/internal/api"
	"tableside/internal/app"
	"tableside/internal/common/logger"
	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/orders"
	"tableside/internal/realtime"
	"tableside/internal/sessions"
	"tableside/internal/tables"
)

const usage = `commands:
  tables                      list the board
  reload                      refetch tables and orders
  checkin <table>             open a session (table number or id)
  checkout <session>          serve what is left and close the session
  status <table> <status>     set a table available or occupied
  queue                       list the waiting queue
  enqueue <size> <name...>    add a party to the queue
  seat <item> | cancel <item> update a queue entry
  remove <item>               delete a queue entry`

var errUsage = errors.New("unknown command, try help")

// Terminal is the front-of-house view of one branch: its tables, the
// sessions opened here and the waiting queue.
type Terminal struct {
	branchID string
	client   *api.Client
	board    *tables.Board
	book     *orders.Book
	sessions *sessions.Machine
	log      *logger.Logger
}

// NewTerminal builds a terminal; rooms may be nil when no hub is in use.
func NewTerminal(branchID string, client *api.Client, rooms sessions.RoomJoiner, lg *logger.Logger) *Terminal {
	if lg == nil {
		lg = logger.Nop()
	}
	book := orders.NewBook(lg)
	t := &Terminal{
		branchID: branchID,
		client:   client,
		board:    tables.NewBoard(client, lg),
		book:     book,
		sessions: sessions.NewMachine(client, rooms, book, "floor", lg),
		log:      lg,
	}
	t.board.OnChange(func(tb domain.Table) {
		lg.Info("table_changed", map[string]any{"table": tb.Number, "status": tb.Status, "session_id": tb.ActiveSessionID})
	})
	t.sessions.OnChange(func(s domain.Session) {
		if !s.Active() {
			lg.Info("session_closed", map[string]any{"session_id": s.ID, "table_id": s.Table.ID()})
		}
	})
	return t
}

// Load fetches the board and the branch's open orders.
func (t *Terminal) Load(ctx context.Context) error {
	if err := t.board.Load(ctx, t.branchID); err != nil {
		return err
	}
	open, err := t.client.OrdersByBranch(ctx, t.branchID, orders.OpenStatuses()...)
	if err != nil {
		return fmt.Errorf("loading open orders: %w", err)
	}
	t.book.Replace(open, orders.OpenStatuses()...)
	return nil
}

// Subscribe follows the branch room.
func (t *Terminal) Subscribe(s realtime.Subscriber) {
	t.board.Subscribe(s)
	t.book.Subscribe(s)
	t.sessions.Subscribe(s)
}

// Close leaves the session rooms joined by check-ins and waits for pending
// leaves. It must run before the hub link is closed.
func (t *Terminal) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.sessions.Close(ctx); err != nil {
		t.log.Warn("session_rooms_close_failed", err, nil)
	}
}

func (t *Terminal) Exec(ctx context.Context, args []string) (string, error) {
	switch args[0] {
	case "help":
		return usage, nil
	case "tables":
		return t.renderBoard(), nil
	case "reload":
		if err := t.Load(ctx); err != nil {
			return "", err
		}
		return t.renderBoard(), nil
	case "checkin":
		if len(args) != 2 {
			return "", errUsage
		}
		tb, err := t.resolveTable(args[1])
		if err != nil {
			return "", err
		}
		s, err := t.sessions.CheckIn(ctx, t.branchID, tb.ID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("table %d checked in, session %s, join code %s", tb.Number, s.ID, s.JoinCode), nil
	case "checkout":
		if len(args) != 2 {
			return "", errUsage
		}
		s, err := t.sessions.Checkout(ctx, args[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("session %s checked out", s.ID), nil
	case "status":
		if len(args) != 3 {
			return "", errUsage
		}
		tb, err := t.resolveTable(args[1])
		if err != nil {
			return "", err
		}
		updated, err := t.board.SetStatus(ctx, tb.ID, domain.TableStatus(args[2]))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("table %d is %s", updated.Number, updated.Status), nil
	case "queue":
		items, err := t.client.Queue(ctx, t.branchID)
		if err != nil {
			return "", err
		}
		return renderQueue(items), nil
	case "enqueue":
		if len(args) < 3 {
			return "", errUsage
		}
		size, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("party size %q: %w", args[1], err)
		}
		item, err := t.client.Enqueue(ctx, domain.QueueItemInput{
			BranchID:  t.branchID,
			PartyName: strings.Join(args[2:], " "),
			PartySize: size,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("queued %s (%d) as %s", item.PartyName, item.PartySize, item.ID), nil
	case "seat", "cancel":
		if len(args) != 2 {
			return "", errUsage
		}
		status := domain.QueueSeated
		if args[0] == "cancel" {
			status = domain.QueueCancelled
		}
		item, err := t.client.UpdateQueueItem(ctx, args[1], domain.QueueItemInput{Status: status})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s is %s", item.PartyName, item.Status), nil
	case "remove":
		if len(args) != 2 {
			return "", errUsage
		}
		if err := t.client.DeleteQueueItem(ctx, args[1]); err != nil {
			return "", err
		}
		return "removed " + args[1], nil
	}
	return "", errUsage
}

// resolveTable accepts a table number or id.
func (t *Terminal) resolveTable(ref string) (domain.Table, error) {
	if tb, ok := t.board.Get(ref); ok {
		return tb, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		for _, tb := range t.board.List() {
			if tb.Number == n {
				return tb, nil
			}
		}
	}
	return domain.Table{}, fmt.Errorf("no table %q on this floor", ref)
}

func (t *Terminal) renderBoard() string {
	var b strings.Builder
	for _, tb := range t.board.List() {
		fmt.Fprintf(&b, "%3d  %-9s  seats %d", tb.Number, tb.Status, tb.Capacity)
		if tb.ActiveSessionID != "" {
			fmt.Fprintf(&b, "  session %s", tb.ActiveSessionID)
			if n := len(t.book.BySession(tb.ActiveSessionID)); n > 0 {
				fmt.Fprintf(&b, ", %d orders", n)
			}
		}
		b.WriteByte('\n')
	}
	counts := t.board.Counts()
	fmt.Fprintf(&b, "available %d, occupied %d", counts[domain.TableAvailable], counts[domain.TableOccupied])
	return b.String()
}

func renderQueue(items []domain.QueueItem) string {
	if len(items) == 0 {
		return "queue is empty"
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-9s  %d  %s", it.ID, it.Status, it.PartySize, it.PartyName)
	}
	return b.String()
}

// Run opens the floor terminal for the configured branch and reads
// commands from stdin until ctx ends.
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
	term := NewTerminal(branchID, link.API, link.Rooms, lg)
	defer term.Close()
	if err := term.Load(ctx); err != nil {
		return err
	}
	link.Track(ctx, domain.RoomBranch, branchID, term.Subscribe, term.Load)

	lg.Info("floor_ready", map[string]any{"branch_id": branchID, "tables": len(term.board.List()), "realtime": link.Online()})
	fmt.Println(term.renderBoard())
	return app.Console(ctx, os.Stdin, os.Stdout, term.Exec, lg)
}
