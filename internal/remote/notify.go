package remote

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
)

// notification is the wire form of a change ping from the service.
type notification struct {
	Kind     string `json:"kind"`
	DeviceID string `json:"device_id,omitempty"`
}

// Listener maintains a websocket subscription to the service's change feed
// and invokes a callback when another device pushes changes.
//
// Delivery is best-effort. The sync daemon never relies on the listener
// alone; a periodic fallback timer covers missed pings.
type Listener struct {
	url      string
	token    string
	deviceID string
	onChange func()
	logger   *log.Logger

	// reconnectBase is the initial delay before a reconnect attempt; it
	// doubles up to reconnectMax.
	reconnectBase time.Duration
	reconnectMax  time.Duration
}

// NewListener creates a change-feed listener. onChange is called from the
// listener goroutine once per received ping; it must be cheap (the daemon
// passes its debounced sync trigger). If logger is nil, a default logger
// writing to stderr is used.
func NewListener(wsURL, token, deviceID string, onChange func(), logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	return &Listener{
		url:           wsURL,
		token:         token,
		deviceID:      deviceID,
		onChange:      onChange,
		logger:        logger,
		reconnectBase: time.Second,
		reconnectMax:  2 * time.Minute,
	}
}

// Run connects and listens until ctx is cancelled, reconnecting with
// doubling delays on failure. Always returns ctx.Err().
func (l *Listener) Run(ctx context.Context) error {
	delay := l.reconnectBase
	for {
		if err := l.listenOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Printf("connection lost: %v (reconnecting in %v)", err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > l.reconnectMax {
			delay = l.reconnectMax
		}
	}
}

// listenOnce dials the feed and processes pings until the connection drops.
func (l *Listener) listenOnce(ctx context.Context) error {
	opts := &websocket.DialOptions{}
	if l.token != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + l.token},
		}
	}

	conn, _, err := websocket.Dial(ctx, l.url, opts)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	l.logger.Printf("subscribed to change feed")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var n notification
		if err := json.Unmarshal(data, &n); err != nil {
			l.logger.Printf("ignoring malformed notification: %v", err)
			continue
		}

		// Ignore echoes of our own pushes.
		if n.DeviceID == l.deviceID {
			continue
		}

		if n.Kind == "changes" && l.onChange != nil {
			l.onChange()
		}
	}
}
