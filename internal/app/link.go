// Package app holds the process runners behind each --mode.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"tableside/internal/api"
	"tableside/internal/common/logger"
	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/realtime"
)

const connectTimeout = 10 * time.Second

// redialInterval is how often a link whose transport gave up starts a new
// round of connection attempts.
var redialInterval = 15 * time.Second

// Link is a device's pair of connections: the storage API and the hub.
type Link struct {
	API     *api.Client
	Manager *realtime.Manager
	Rooms   *realtime.Rooms
	Scope   *realtime.Scope

	log  *logger.Logger
	stop chan struct{}
	wg   sync.WaitGroup
}

// Dial checks the storage service, then opens the realtime link and waits
// briefly for it to come up. An unreachable hub is not an error: the link
// keeps redialling and the device works from REST snapshots meanwhile.
func Dial(ctx context.Context, cfg *config.Config, lg *logger.Logger) (*Link, error) {
	client := api.New(cfg.Client.APIURL, nil)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("storage service at %s: %w", cfg.Client.APIURL, err)
	}

	m := realtime.NewManager(realtime.Options{
		URL:               cfg.Realtime.URL,
		Namespace:         cfg.Realtime.Namespace,
		ReconnectAttempts: cfg.Realtime.ReconnectAttempts,
		ReconnectDelay:    cfg.Realtime.ReconnectDelay,
		Logger:            lg.With("realtime"),
	})
	rooms := realtime.NewRooms(m, cfg.Realtime.AckTimeout, lg)
	l := &Link{
		API:     client,
		Manager: m,
		Rooms:   rooms,
		Scope:   realtime.NewScope(rooms),
		log:     lg,
		stop:    make(chan struct{}),
	}
	m.Connect()

	wctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := m.WaitConnected(wctx); err != nil {
		if ctx.Err() != nil {
			m.Disconnect()
			return nil, ctx.Err()
		}
		lg.Warn("realtime_unavailable", err, map[string]any{"endpoint": m.Endpoint()})
	}

	l.wg.Add(1)
	go l.redial()
	return l, nil
}

func (l *Link) redial() {
	defer l.wg.Done()
	tick := time.NewTicker(redialInterval)
	defer tick.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-tick.C:
			// No-op while the transport is still trying.
			l.Manager.Connect()
		}
	}
}

// Track keeps the device in a room across outages. The room is joined now
// when the hub is up, otherwise on the next connect; subscribe runs once,
// after the first successful join. Every connect also runs reload so that
// snapshots catch up with events missed while the link was down.
func (l *Link) Track(ctx context.Context, kind domain.RoomKind, id string, subscribe func(realtime.Subscriber), reload func(context.Context) error) {
	room := domain.RoomName(kind, id)
	var (
		mu     sync.Mutex
		joined bool
	)
	join := func() {
		mu.Lock()
		defer mu.Unlock()
		if joined {
			return
		}
		ms, err := l.Scope.Join(ctx, kind, id)
		if err != nil {
			l.log.Warn("room_join_failed", err, map[string]any{"room": room})
			return
		}
		subscribe(ms)
		joined = true
		l.log.Info("room_tracked", map[string]any{"room": room})
	}

	l.Scope.On(domain.EventConnect, func(realtime.Event) {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			join()
			if err := reload(ctx); err != nil {
				l.log.Warn("reload_failed", err, map[string]any{"room": room})
			}
		}()
	})
	if l.Manager.IsConnected() {
		join()
	} else {
		l.log.Info("room_join_deferred", map[string]any{"room": room})
	}
}

// Online reports whether the hub link is currently up.
func (l *Link) Online() bool { return l.Manager.IsConnected() }

// Close releases the scope, stops redialling and drops the hub connection.
func (l *Link) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Scope.Close(ctx); err != nil {
		l.log.Warn("scope_close_failed", err, nil)
	}
	close(l.stop)
	l.wg.Wait()
	l.Manager.Disconnect()
}

// Exec runs one console command and returns what to print.
type Exec func(ctx context.Context, args []string) (string, error)

// Console reads commands line by line from in until ctx ends or in is
// exhausted. Command errors are printed and logged, never fatal.
func Console(ctx context.Context, in io.Reader, out io.Writer, exec Exec, lg *logger.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			args := strings.Fields(line)
			if len(args) == 0 {
				continue
			}
			res, err := exec(ctx, args)
			if err != nil {
				lg.Warn("command_failed", err, map[string]any{"command": args[0]})
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if res != "" {
				fmt.Fprintln(out, res)
			}
		}
	}
}
