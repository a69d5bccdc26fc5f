package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ZeeShekh1908/royal/internal/notify"
	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/ZeeShekh1908/royal/internal/projection"
	"go.uber.org/zap"
)

type adminAPI interface {
	Accept(ctx context.Context, id string) (orders.Order, error)
	Reject(ctx context.Context, id string) (orders.Order, error)
	MarkDone(ctx context.Context, id string) (orders.Order, error)
}

type silencer interface{ Silence() }

type verdict int

const (
	keepGoing verdict = iota
	quit
	logout
)

const help = `commands:
  list                 active orders, newest first
  accept <id>          pending -> accepted
  reject <id>          pending -> rejected
  done <id>            accepted -> done
  silence              stop the bell
  logout               unregister this device and exit
  quit                 exit`

// console runs operator commands against the API and the local view.
type console struct {
	api  adminAPI
	view *projection.AdminView
	bell silencer
	out  io.Writer
	log  *zap.Logger
}

func (c *console) exec(ctx context.Context, line string) verdict {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return keepGoing
	}
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "list", "ls":
		c.list()
	case "accept", "reject", "done":
		if len(fields) != 2 {
			fmt.Fprintf(c.out, "usage: %s <order-id>\n", cmd)
			return keepGoing
		}
		c.transition(ctx, cmd, c.resolve(fields[1]))
	case "silence":
		c.bell.Silence()
	case "help", "?":
		fmt.Fprintln(c.out, help)
	case "logout":
		return logout
	case "quit", "exit":
		return quit
	default:
		fmt.Fprintf(c.out, "unknown command %q, try help\n", cmd)
	}
	return keepGoing
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (c *console) list() {
	list := c.view.Orders()
	if len(list) == 0 {
		fmt.Fprintln(c.out, "no active orders")
		return
	}
	for _, o := range list {
		fmt.Fprintf(c.out, "%s  %-8s  %s\n", shortID(o.ID), o.Status, notify.Summary(o))
	}
}

// resolve expands a unique id prefix as printed by list.
func (c *console) resolve(prefix string) string {
	match := ""
	for _, o := range c.view.Orders() {
		if o.ID == prefix {
			return prefix
		}
		if strings.HasPrefix(o.ID, prefix) {
			if match != "" {
				return prefix
			}
			match = o.ID
		}
	}
	if match == "" {
		return prefix
	}
	return match
}

func (c *console) transition(ctx context.Context, cmd, id string) {
	var (
		op      func(context.Context, string) (orders.Order, error)
		restore func()
	)
	switch cmd {
	case "accept":
		op = c.api.Accept
	case "done":
		op = c.api.MarkDone
	case "reject":
		restore = c.view.Hide(id)
		op = c.api.Reject
	}

	o, err := op(ctx, id)
	if err != nil {
		if restore != nil {
			restore()
		}
		switch {
		case errors.Is(err, orders.ErrNotFound):
			fmt.Fprintf(c.out, "no order %s\n", shortID(id))
		case errors.Is(err, orders.ErrIllegalTransition):
			fmt.Fprintf(c.out, "cannot %s order %s from its current status\n", cmd, shortID(id))
		default:
			c.log.Error("transition failed", zap.String("order_id", id), zap.String("action", cmd), zap.Error(err))
			fmt.Fprintf(c.out, "%s failed: %v\n", cmd, err)
		}
		return
	}
	fmt.Fprintf(c.out, "order %s is now %s\n", shortID(o.ID), o.Status)
}
