// Package blockfeed follows a remote node's committed-block stream over a
// websocket JSON-RPC subscription and applies each block to a local sink.
// Connection loss is retried with exponential backoff; a block the sink
// rejects stops the follower, because the remote would only deliver the
// same block again.
package blockfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/observability"
)

// Config tunes the websocket session.
type Config struct {
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// PingInterval is how often ping frames keep an idle connection alive.
	PingInterval time.Duration
	// ReadTimeout is the per-read deadline; pongs extend it.
	ReadTimeout time.Duration
	// WriteTimeout is the per-write deadline.
	WriteTimeout time.Duration
	// InitialReconnectDelay seeds the backoff between sessions.
	InitialReconnectDelay time.Duration
	// MaxReconnectDelay caps the backoff between sessions.
	MaxReconnectDelay time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:      10 * time.Second,
		PingInterval:          30 * time.Second,
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          10 * time.Second,
		InitialReconnectDelay: 1 * time.Second,
		MaxReconnectDelay:     30 * time.Second,
	}
}

// BlockSink receives the followed blocks in height order. chain.Chain
// satisfies it.
type BlockSink interface {
	ApplyBlock(ctx context.Context, block *domain.Block) error
}

// ApplyError reports that the sink rejected a block. Reconnecting cannot
// help: the remote would redeliver the same block, so Run stops and returns
// this error instead of retrying.
type ApplyError struct {
	Height uint64
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply block %d: %v", e.Height, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Options for creating a Follower.
type Options struct {
	// Endpoint is the ws:// or wss:// URL of the remote node.
	Endpoint string
	Sink     BlockSink
	Logger   *log.Logger
	// Config overrides DefaultConfig when non-nil.
	Config *Config
	// LastApplied is the height of the last block already applied to the
	// sink; the subscription starts from the next one.
	LastApplied uint64
}

// Follower subscribes to a remote block stream and drives a BlockSink.
type Follower struct {
	endpoint string
	config   Config
	sink     BlockSink
	logger   *log.Logger

	requestID  uint64
	lastHeight uint64
}

// NewFollower creates a Follower. It does not connect; call Run.
func NewFollower(opts Options) (*Follower, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("sink is required")
	}
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[blockfeed] ", log.LstdFlags)
	}
	return &Follower{
		endpoint:   opts.Endpoint,
		config:     cfg,
		sink:       opts.Sink,
		logger:     logger,
		lastHeight: opts.LastApplied,
	}, nil
}

// Run follows the stream until ctx is cancelled or the sink rejects a
// block. Connection and subscription failures are retried with exponential
// backoff; the backoff resets once a subscription is confirmed.
func (f *Follower) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.config.InitialReconnectDelay
	bo.MaxInterval = f.config.MaxReconnectDelay
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		err := f.session(ctx, bo)

		var applyErr *ApplyError
		if errors.As(err, &applyErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := bo.NextBackOff()
		f.logger.Printf("stream session ended: %v; reconnecting in %s", err, wait)
		observability.RecordFeedReconnect()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connection: dial, subscribe, then read notifications
// until the connection breaks, the context ends or the sink rejects a block.
func (f *Follower) session(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	dialer := websocket.Dialer{HandshakeTimeout: f.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.endpoint, err)
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock a pending read.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	subID, err := f.subscribe(conn)
	if err != nil {
		return err
	}
	bo.Reset()
	f.logger.Printf("subscribed to block stream (subscription %d, from height %d)", subID, f.lastHeight+1)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
	})
	go f.pingLoop(conn, stop)

	for {
		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := f.handleMessage(ctx, subID, message); err != nil {
			return err
		}
	}
}

// subscribe sends the subscribe_blocks request and waits for its
// confirmation. The session has exactly one subscription, so the next frame
// after the request is its response.
func (f *Follower) subscribe(conn *websocket.Conn) (int64, error) {
	f.requestID++
	req := rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      f.requestID,
		Method:  methodSubscribeBlocks,
		Params:  []interface{}{subscribeParams{StartHeight: f.lastHeight + 1}},
	}

	conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
	var resp rpcSubscribeResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return 0, fmt.Errorf("read subscribe response: %w", err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("subscribe rejected: code %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.ID != f.requestID {
		return 0, fmt.Errorf("subscribe response id %d does not match request %d", resp.ID, f.requestID)
	}
	return resp.Result, nil
}

// handleMessage decodes one frame. Malformed blocks are counted and skipped
// without advancing the resume height, so a later session can request them
// again; only a sink rejection returns an error.
func (f *Follower) handleMessage(ctx context.Context, subID int64, message []byte) error {
	var notif rpcNotification
	if err := json.Unmarshal(message, &notif); err != nil {
		return nil // not a notification frame
	}
	if notif.Method != methodBlockApplied || notif.Params == nil {
		return nil
	}
	if notif.Params.Subscription != subID {
		return nil
	}

	wb := &notif.Params.Result
	if wb.Height <= f.lastHeight {
		return nil // redelivered after resubscribe
	}

	block, err := decodeBlock(wb)
	if err != nil {
		observability.RecordFeedDecodeError()
		f.logger.Printf("discarding malformed block %d: %v", wb.Height, err)
		return nil
	}

	if err := f.sink.ApplyBlock(ctx, block); err != nil {
		return &ApplyError{Height: block.Height, Err: err}
	}
	f.lastHeight = block.Height
	observability.RecordFeedBlock()
	return nil
}

// pingLoop keeps the connection alive between blocks. A write failure is
// left for the read loop to notice.
func (f *Follower) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
