package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/registrar/pkg/adapters/memnode"
	"github.com/aretw0/registrar/pkg/adapters/rpc"
	"github.com/aretw0/registrar/pkg/core"
)

// Client bundles the count subscriber, record fetcher and dispatcher over one node.
type Client struct {
	Node       core.Node
	Service    *core.Service
	Dispatcher *core.Dispatcher

	closers []func() error
}

// New connects to the registry. The endpoint is adapter-specific: a websocket URL for
// "rpc", ignored for "memory". The service is created but not started.
func New(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	c := &Client{}
	node, err := c.openNode(ctx, endpoint, o)
	if err != nil {
		return nil, err
	}
	c.Node = node

	svcOpts := []core.ServiceOption{
		core.WithServiceLogger(o.logger),
		core.WithSession(core.Session{Account: o.account}),
	}
	if o.eventBuffer > 0 {
		svcOpts = append(svcOpts, core.WithEventBuffer(o.eventBuffer))
	}
	c.Service = core.NewService(node, svcOpts...)
	c.closers = append([]func() error{c.Service.Close}, c.closers...)

	dispOpts := []core.DispatcherOption{core.WithDispatchLogger(o.logger)}
	if o.observer != nil {
		dispOpts = append(dispOpts, core.WithStatusObserver(o.observer))
	}
	c.Dispatcher = core.NewDispatcher(node, dispOpts...)
	return c, nil
}

func (c *Client) openNode(ctx context.Context, endpoint string, o *options) (core.Node, error) {
	if o.node != nil {
		return o.node, nil
	}

	switch o.adapter {
	case AdapterRPC:
		client, err := rpc.Dial(ctx, endpoint, rpc.WithClientLogger(o.logger))
		if err != nil {
			return nil, err
		}
		nodeOpts := []rpc.NodeOption{rpc.WithNodeLogger(o.logger)}
		if o.builder != nil {
			nodeOpts = append(nodeOpts, rpc.WithBuilder(o.builder))
		}
		n := rpc.NewNode(client, nodeOpts...)
		c.closers = append(c.closers, n.Close)
		return n, nil

	case AdapterMemory:
		cfg := o.memory
		if cfg.Logger == nil {
			cfg.Logger = o.logger
		}
		n, err := memnode.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := n.Start(ctx); err != nil {
			_ = n.Close()
			return nil, err
		}
		c.closers = append(c.closers, n.Close)
		return n, nil

	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
}

// Session returns the service's current session.
func (c *Client) Session() core.Session {
	return c.Service.Session()
}

// Dispatch sends action for the current session.
func (c *Client) Dispatch(ctx context.Context, action core.Action, opts core.DispatchOptions) *core.Tracker {
	return c.Dispatcher.Dispatch(ctx, c.Service.Session(), action, opts)
}

// Close stops the service and releases the node connection.
func (c *Client) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && !errors.Is(err, core.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
