package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rmacdonaldsmith/pusher-go/internal/metrics"
	"github.com/rmacdonaldsmith/pusher-go/pkg/client"
	"github.com/rmacdonaldsmith/pusher-go/pkg/envelope"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type listenOptions struct {
	channels    []string
	events      []string
	pretty      bool
	metricsAddr string
	authToken   string
}

func newListenCommand(root *rootOptions) *cobra.Command {
	opts := &listenOptions{}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Subscribe to channels and print events",
		Long: `Connect to the broker, subscribe to every --channel and print each
--event delivered on them. The connection reconnects until Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.requireConfig(); err != nil {
				return err
			}
			if len(opts.channels) == 0 {
				return errors.New("at least one --channel is required")
			}
			if len(opts.events) == 0 {
				return errors.New("at least one --event is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runListen(ctx, root, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVar(&opts.channels, "channel", nil, "Channel to subscribe to (repeatable)")
	cmd.Flags().StringArrayVar(&opts.events, "event", nil, "Event to print on every channel (repeatable)")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "Pretty print JSON payloads")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.authToken, "auth-token", "", "Bearer token sent to the auth endpoint")

	return cmd
}

func runListen(ctx context.Context, root *rootOptions, opts *listenOptions, out io.Writer) error {
	clientOpts := root.cfg.ClientOptions(root.logger)
	// listen subscribes on every connection:established itself
	clientOpts.AutoSubscribe = false

	if opts.authToken != "" {
		headers := make(map[string]string, len(clientOpts.AuthEndpointHeaders)+1)
		for k, v := range clientOpts.AuthEndpointHeaders {
			headers[k] = v
		}
		headers["Authorization"] = "Bearer " + opts.authToken
		clientOpts.AuthEndpointHeaders = headers
	}

	metricsAddr := opts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = root.cfg.Metrics.Addr
	}
	var registry *prometheus.Registry
	if metricsAddr != "" {
		registry = prometheus.NewRegistry()
		clientOpts.Observer = metrics.New(metrics.Config{Registry: registry})
	}

	c, err := client.New(root.cfg.App.Key, clientOpts)
	if err != nil {
		return err
	}

	p := &printer{out: out, pretty: opts.pretty}
	for _, name := range opts.channels {
		ch := c.Channel(name)
		for _, event := range opts.events {
			ch.Bind(event, func(data json.RawMessage) {
				p.print(name, event, data)
			})
		}
	}

	c.Bind(envelope.EventConnectionEstablished, func(json.RawMessage) {
		p.status("🔌 Connected (socket %s)", c.SocketID())
		subscribeAll(ctx, c, opts.channels, p)
	})
	c.Bind(envelope.EventConnectionError, func(data json.RawMessage) {
		p.status("❌ Broker error: %s", string(data))
	})

	p.status("🌊 Listening on %s", c.URL())
	p.status("Press Ctrl+C to stop")

	var (
		server   *http.Server
		listener net.Listener
	)
	if registry != nil {
		server = &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsRouter(root.cfg.Metrics.Path, registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		listener, err = net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		p.status("📈 Metrics on http://%s%s", listener.Addr(), root.cfg.Metrics.Path)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A clean broker close ends the metrics server too
		defer cancel()
		err := c.Connect(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if server != nil {
		g.Go(func() error {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	p.status("\n✅ Stopped. Received %d events.", p.count())
	return err
}

// subscribeAll (re)subscribes every channel on the current connection.
func subscribeAll(ctx context.Context, c *client.Client, channels []string, p *printer) {
	for _, name := range channels {
		if _, err := c.Subscribe(ctx, name); err != nil {
			p.status("❌ Subscribe %s failed: %v", name, err)
			continue
		}
		p.status("📡 Subscribed to %s", name)
	}
}

func metricsRouter(path string, registry *prometheus.Registry) http.Handler {
	if path == "" {
		path = "/metrics"
	}
	r := chi.NewRouter()
	r.Handle(path, metrics.Handler(registry))
	return r
}

// printer serializes output from concurrently dispatched callbacks.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	pretty bool
	events int
}

func (p *printer) status(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

func (p *printer) print(channel, event string, data json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events++
	fmt.Fprintf(p.out, "📨 Event #%d:\n", p.events)
	fmt.Fprintf(p.out, "   Channel: %s\n", channel)
	fmt.Fprintf(p.out, "   Event: %s\n", event)
	fmt.Fprintf(p.out, "   Time: %s\n", time.Now().Format("2006-01-02 15:04:05.000"))

	if len(data) == 0 {
		fmt.Fprintf(p.out, "   Data: null\n\n")
		return
	}

	fmt.Fprintf(p.out, "   Data: ")
	if p.pretty {
		var v interface{}
		if err := json.Unmarshal(data, &v); err == nil {
			if b, err := json.MarshalIndent(v, "         ", "  "); err == nil {
				fmt.Fprintf(p.out, "\n         %s\n\n", string(b))
				return
			}
		}
	}
	fmt.Fprintf(p.out, "%s\n\n", string(data))
}
