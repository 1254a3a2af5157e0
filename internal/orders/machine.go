// Package orders holds the order state machine, a reconciling local view
// of orders and the kitchen-side actions that drive them.
package orders

import (
	"errors"
	"fmt"

	"tableside/internal/domain"
)

var ErrInvalidTransition = errors.New("invalid order transition")

type Action int

const (
	Prepare Action = iota + 1
	ServeLine
	Serve
	Pay
)

func (a Action) String() string {
	switch a {
	case Prepare:
		return "prepare"
	case ServeLine:
		return "serve-line"
	case Serve:
		return "serve"
	case Pay:
		return "pay"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Event asks for one transition. Line is only read by ServeLine.
type Event struct {
	Action Action
	Line   int
}

// Target is the order status an action moves towards.
func (a Action) Target() domain.OrderStatus {
	switch a {
	case Prepare:
		return domain.OrderPreparing
	case ServeLine, Serve:
		return domain.OrderServed
	case Pay:
		return domain.OrderPaid
	}
	return ""
}

// ActionFor maps a requested status to the bulk action reaching it.
func ActionFor(s domain.OrderStatus) (Action, error) {
	switch s {
	case domain.OrderPreparing:
		return Prepare, nil
	case domain.OrderServed:
		return Serve, nil
	case domain.OrderPaid:
		return Pay, nil
	}
	return 0, fmt.Errorf("%w: cannot move an order to %q", ErrInvalidTransition, s)
}

// Advance applies ev to o and returns the resulting order. changed is false
// when ev is already satisfied. Line statuses follow the order on bulk
// transitions, and serving the last outstanding line serves the order.
// o is never modified.
func Advance(o domain.Order, ev Event) (domain.Order, bool, error) {
	if o.Status.Terminal() {
		if ev.Action == Pay {
			return o, false, nil
		}
		return o, false, invalid(o, ev)
	}

	next := o.Clone()
	switch ev.Action {
	case Prepare:
		switch o.Status {
		case domain.OrderPending:
			raise(&next, domain.OrderPreparing)
		case domain.OrderPreparing:
			return o, false, nil
		default:
			return o, false, invalid(o, ev)
		}

	case ServeLine:
		if o.Status != domain.OrderPreparing {
			return o, false, invalid(o, ev)
		}
		if ev.Line < 0 || ev.Line >= len(next.Lines) {
			return o, false, fmt.Errorf("%w: order %s has no line %d", ErrInvalidTransition, o.ID, ev.Line)
		}
		if !next.Lines[ev.Line].Status.Before(domain.OrderServed) {
			return o, false, nil
		}
		next.Lines[ev.Line].Status = domain.OrderServed
		if allLinesServed(next) {
			next.Status = domain.OrderServed
		}

	case Serve:
		switch o.Status {
		case domain.OrderPending, domain.OrderPreparing:
			raise(&next, domain.OrderServed)
		case domain.OrderServed:
			return o, false, nil
		default:
			return o, false, invalid(o, ev)
		}

	case Pay:
		raise(&next, domain.OrderPaid)

	default:
		return o, false, fmt.Errorf("%w: unknown action %s", ErrInvalidTransition, ev.Action)
	}
	return next, true, nil
}

func invalid(o domain.Order, ev Event) error {
	return fmt.Errorf("%w: %s on order %s in status %s", ErrInvalidTransition, ev.Action, o.ID, o.Status)
}

// raise moves the order and every line behind s up to s.
func raise(o *domain.Order, s domain.OrderStatus) {
	o.Status = s
	for i := range o.Lines {
		if o.Lines[i].Status.Before(s) {
			o.Lines[i].Status = s
		}
	}
}

func allLinesServed(o domain.Order) bool {
	if len(o.Lines) == 0 {
		return false
	}
	for _, l := range o.Lines {
		if l.Status.Before(domain.OrderServed) {
			return false
		}
	}
	return true
}
