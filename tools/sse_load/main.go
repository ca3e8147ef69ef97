package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type loadOptions struct {
	url         string
	connections int
	duration    time.Duration
	rampUp      time.Duration
	lastEventID int64
}

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	changes     atomic.Int64
	heartbeats  atomic.Int64
	maxSeq      atomic.Int64
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	opts := loadOptions{}
	cmd := &cobra.Command{
		Use:   "sse_load",
		Short: "Open many subscribers on the change stream and count delivered events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:8080/changes/stream", "change stream URL")
	cmd.Flags().IntVar(&opts.connections, "conns", 200, "number of concurrent subscribers")
	cmd.Flags().DurationVar(&opts.duration, "dur", 60*time.Second, "test duration (0 runs until interrupted)")
	cmd.Flags().DurationVar(&opts.rampUp, "ramp", 0, "spread subscriber starts across this window")
	cmd.Flags().Int64Var(&opts.lastEventID, "last-event-id", 0, "resume every subscriber after this sequence")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts loadOptions, logger *zap.Logger) error {
	if opts.connections <= 0 {
		return fmt.Errorf("invalid conns: %d", opts.connections)
	}
	if opts.rampUp == 0 && opts.connections > 100 {
		opts.rampUp = max(time.Duration(opts.connections/500)*time.Second, time.Second)
	}
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	logger.Info("starting change stream load",
		zap.String("url", opts.url),
		zap.Int("conns", opts.connections),
		zap.Duration("duration", opts.duration),
		zap.Duration("ramp", opts.rampUp))

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     opts.connections + 100,
			MaxIdleConns:        opts.connections + 100,
			MaxIdleConnsPerHost: opts.connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	var (
		c        counters
		wg       sync.WaitGroup
		start    = time.Now()
		interval time.Duration
	)
	if opts.rampUp > 0 {
		interval = opts.rampUp / time.Duration(opts.connections)
	}

	go report(ctx, &c, start, logger)

	for i := 0; i < opts.connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				continue
			case <-time.After(interval):
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			subscribe(ctx, client, opts, &c)
		}()
	}
	wg.Wait()

	elapsed := max(time.Since(start), time.Millisecond)
	logger.Info("done",
		zap.Int64("connected", c.connected.Load()),
		zap.Int64("connect_errs", c.connectErrs.Load()),
		zap.Int64("stream_errs", c.streamErrs.Load()),
		zap.Int64("changes", c.changes.Load()),
		zap.Int64("heartbeats", c.heartbeats.Load()),
		zap.Int64("max_seq", c.maxSeq.Load()),
		zap.Duration("elapsed", elapsed.Truncate(time.Millisecond)),
		zap.Float64("changes_per_sec", float64(c.changes.Load())/elapsed.Seconds()))
	return nil
}

func subscribe(ctx context.Context, client *http.Client, opts loadOptions, c *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.url, nil)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	if opts.lastEventID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(opts.lastEventID, 10))
	}

	resp, err := client.Do(req)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.connectErrs.Add(1)
		return
	}
	c.connected.Add(1)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				c.streamErrs.Add(1)
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, ":"):
			c.heartbeats.Add(1)
		case strings.HasPrefix(line, "id: "):
			seq, err := strconv.ParseInt(strings.TrimPrefix(line, "id: "), 10, 64)
			if err == nil {
				raiseMax(&c.maxSeq, seq)
			}
		case line == "event: change":
			c.changes.Add(1)
		}
	}
}

func raiseMax(v *atomic.Int64, seq int64) {
	for {
		cur := v.Load()
		if seq <= cur || v.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func report(ctx context.Context, c *counters, start time.Time, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("status",
				zap.Int64("connected", c.connected.Load()),
				zap.Int64("connect_errs", c.connectErrs.Load()),
				zap.Int64("stream_errs", c.streamErrs.Load()),
				zap.Int64("changes", c.changes.Load()),
				zap.Int64("max_seq", c.maxSeq.Load()),
				zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
		}
	}
}
