// Package customer is the diner's device: it joins a table's session by
// code, keeps a cart on disk and sends it to the kitchen as orders.
package customer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"tableside/internal/api"
	"tableside/internal/app"
	"tableside/internal/cart"
	"tableside/internal/common/logger"
	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/realtime"
	"tableside/internal/sessions"
)

const usage = `commands:
  menu                        list the menu
  add <item> [qty] [note...]  put an item in the cart (menu number or id)
  remove <item> [qty]         take an item out, all of it without qty
  note <item> <text...>       set the note on a cart line
  name <name...>              set the name shown on orders
  cart                        show the cart
  submit                      send the cart to the kitchen
  history                     orders sent from this device
  reload                      refetch the session and menu`

var errUsage = errors.New("unknown command, try help")

// Device is one customer's view of a session.
type Device struct {
	client   *api.Client
	store    *cart.FileStore
	cart     *cart.Cart
	sessions *sessions.Machine
	pipeline *cart.Pipeline
	session  domain.Session

	mu   sync.Mutex
	menu []domain.MenuItem
}

// Open restores the cart saved for joinCode under stateDir and joins the
// session behind it. rooms may be nil, in which case submitted orders are
// not followed live.
func Open(ctx context.Context, joinCode, stateDir string, client *api.Client, rooms cart.OrderRooms, lg *logger.Logger) (*Device, error) {
	if lg == nil {
		lg = logger.Nop()
	}
	store, err := cart.NewFileStore(stateDir)
	if err != nil {
		return nil, err
	}
	c, err := cart.Open(store, joinCode)
	if err != nil {
		return nil, fmt.Errorf("opening cart for %s: %w", joinCode, err)
	}

	// The session room is joined by the link so that it survives outages.
	m := sessions.NewMachine(client, nil, nil, "customer", lg)
	clientID, name := c.Identity()
	s, err := m.Join(ctx, joinCode, clientID, name)
	if errors.Is(err, sessions.ErrCheckedOut) {
		if derr := store.Delete(joinCode); derr != nil {
			lg.Warn("cart_delete_failed", derr, map[string]any{"join_code": joinCode})
		}
		return nil, fmt.Errorf("session %s: %w", joinCode, err)
	}
	if err != nil {
		return nil, err
	}

	d := &Device{
		client:   client,
		store:    store,
		cart:     c,
		sessions: m,
		pipeline: cart.NewPipeline(c, s, m, client, rooms, lg),
		session:  s,
	}
	m.OnChange(func(s domain.Session) {
		if s.ID == d.session.ID && !s.Active() {
			lg.Info("session_checked_out", map[string]any{"session_id": s.ID})
		}
	})
	if err := d.loadMenu(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Session is the session this device joined.
func (d *Device) Session() domain.Session { return d.session }

// Subscribe follows sessionCheckout on the session room.
func (d *Device) Subscribe(s realtime.Subscriber) { d.sessions.Subscribe(s) }

// Reload refetches the session, catching a checkout missed while offline,
// and the menu.
func (d *Device) Reload(ctx context.Context) error {
	s, err := d.client.Session(ctx, d.session.ID)
	if err != nil {
		return fmt.Errorf("reloading session: %w", err)
	}
	d.sessions.Track(s)
	return d.loadMenu(ctx)
}

func (d *Device) loadMenu(ctx context.Context) error {
	menu, err := d.client.Menu(ctx, d.session.Branch.ID())
	if err != nil {
		return fmt.Errorf("loading menu: %w", err)
	}
	d.mu.Lock()
	d.menu = menu
	d.mu.Unlock()
	return nil
}

func (d *Device) menuItems() []domain.MenuItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.menu
}

// Close stops following orders. A cart left for a checked-out session is
// deleted.
func (d *Device) Close(ctx context.Context) error {
	err := d.pipeline.Close(ctx)
	if d.sessions.State(d.session.ID) == domain.SessionCheckedOut {
		if derr := d.store.Delete(d.cart.JoinCode()); derr != nil {
			err = errors.Join(err, derr)
		}
	}
	return err
}

func (d *Device) Exec(ctx context.Context, args []string) (string, error) {
	switch args[0] {
	case "help":
		return usage, nil
	case "menu":
		return d.renderMenu(), nil
	case "cart":
		return d.renderCart(), nil
	case "reload":
		if err := d.Reload(ctx); err != nil {
			return "", err
		}
		return d.renderSession(), nil
	case "add":
		if len(args) < 2 {
			return "", errUsage
		}
		item, err := d.resolveItem(args[1])
		if err != nil {
			return "", err
		}
		qty := 1
		note := args[2:]
		if len(args) > 2 {
			if n, err := strconv.Atoi(args[2]); err == nil {
				qty, note = n, args[3:]
			}
		}
		if err := d.cart.Add(item, qty, strings.Join(note, " ")); err != nil {
			return "", err
		}
		return d.renderCart(), nil
	case "remove":
		if len(args) < 2 || len(args) > 3 {
			return "", errUsage
		}
		qty := 0
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil || n < 1 {
				return "", fmt.Errorf("quantity %q: want a positive number", args[2])
			}
			qty = n
		}
		id, err := d.cartItemID(args[1])
		if err != nil {
			return "", err
		}
		if err := d.cart.Remove(id, qty); err != nil {
			return "", err
		}
		return d.renderCart(), nil
	case "note":
		if len(args) < 3 {
			return "", errUsage
		}
		id, err := d.cartItemID(args[1])
		if err != nil {
			return "", err
		}
		if err := d.cart.SetNote(id, strings.Join(args[2:], " ")); err != nil {
			return "", err
		}
		return d.renderCart(), nil
	case "name":
		if len(args) < 2 {
			return "", errUsage
		}
		name := strings.Join(args[1:], " ")
		if err := d.cart.SetDisplayName(name); err != nil {
			return "", err
		}
		return "orders will show " + name, nil
	case "submit":
		o, err := d.pipeline.Submit(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("order %s sent, %s", short(o.ID), money(o.Total)), nil
	case "history":
		list, err := d.history(ctx)
		if err != nil {
			return "", err
		}
		return renderHistory(list), nil
	}
	return "", errUsage
}

// resolveItem accepts a menu number, a menu item id or a unique name.
func (d *Device) resolveItem(ref string) (domain.MenuItem, error) {
	menu := d.menuItems()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(menu) {
			return domain.MenuItem{}, fmt.Errorf("no menu item %d", n)
		}
		return menu[n-1], nil
	}
	var found []domain.MenuItem
	for _, it := range menu {
		if it.ID == ref {
			return it, nil
		}
		if strings.EqualFold(it.Name, ref) {
			found = append(found, it)
		}
	}
	if len(found) != 1 {
		return domain.MenuItem{}, fmt.Errorf("no single menu item matches %q", ref)
	}
	return found[0], nil
}

// cartItemID maps a reference to a line already in the cart; items that
// left the menu since they were added can still be named by id.
func (d *Device) cartItemID(ref string) (string, error) {
	for _, it := range d.cart.Items() {
		if it.MenuItem.ID == ref {
			return ref, nil
		}
	}
	item, err := d.resolveItem(ref)
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

// history lists the orders sent from this device. After a restart the
// local record is empty and the storage service is asked instead.
func (d *Device) history(ctx context.Context) ([]domain.Order, error) {
	if list := d.pipeline.History(); len(list) > 0 {
		return list, nil
	}
	all, err := d.client.OrdersBySession(ctx, d.session.ID)
	if err != nil {
		return nil, fmt.Errorf("loading order history: %w", err)
	}
	clientID, _ := d.cart.Identity()
	var mine []domain.Order
	for _, o := range all {
		if o.ClientID == clientID {
			mine = append(mine, o)
		}
	}
	return mine, nil
}

func (d *Device) renderSession() string {
	state := "open"
	if !d.sessions.Accepting(d.session.ID) {
		state = "checked out"
	}
	return fmt.Sprintf("table %s, session %s", d.session.Table.ID(), state)
}

func (d *Device) renderMenu() string {
	menu := d.menuItems()
	if len(menu) == 0 {
		return "the menu is empty"
	}
	var b strings.Builder
	for i, it := range menu {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%3d. %-24s %8s", i+1, it.Name, money(it.Price))
	}
	return b.String()
}

func (d *Device) renderCart() string {
	items := d.cart.Items()
	if len(items) == 0 {
		return "cart is empty"
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%dx %s  %s", it.Quantity, it.MenuItem.Name, money(it.MenuItem.Price*int64(it.Quantity)))
		if it.Note != "" {
			fmt.Fprintf(&b, "  %q", it.Note)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "total %s", money(d.cart.Total()))
	return b.String()
}

func renderHistory(list []domain.Order) string {
	if len(list) == 0 {
		return "no orders yet"
	}
	var b strings.Builder
	for i, o := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-9s  %s  %s", short(o.ID), o.Status, money(o.Total), o.CreatedAt.Local().Format("15:04"))
	}
	return b.String()
}

// money formats minor units.
func money(n int64) string { return fmt.Sprintf("%d.%02d", n/100, n%100) }

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run joins the configured session and reads commands from stdin until
// ctx ends.
func Run(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	if err := cfg.RequireJoinCode(); err != nil {
		return err
	}
	link, err := app.Dial(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer link.Close()

	dev, err := Open(ctx, cfg.Client.JoinCode, cfg.Client.StateDir, link.API, link.Rooms, lg)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dev.Close(cctx); err != nil {
			lg.Warn("device_close_failed", err, nil)
		}
	}()
	link.Track(ctx, domain.RoomSession, dev.Session().ID, dev.Subscribe, dev.Reload)

	lg.Info("customer_ready", map[string]any{"session_id": dev.Session().ID, "table_id": dev.Session().Table.ID(), "realtime": link.Online()})
	fmt.Println(dev.renderSession())
	fmt.Println(dev.renderMenu())
	return app.Console(ctx, os.Stdin, os.Stdout, dev.Exec, lg)
}
