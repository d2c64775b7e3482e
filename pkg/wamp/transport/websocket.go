package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/tsarna/wamplink/pkg/wamp/serialize"
)

// DefaultReadLimit is the largest frame accepted when WebSocketDialer.ReadLimit
// is not set.
const DefaultReadLimit = 16 << 20

// AuthorizationProvider returns the value of the Authorization header sent with
// the WebSocket handshake (e.g. "Bearer token123"). An empty value sends no
// header.
type AuthorizationProvider func(ctx context.Context) (string, error)

// WebSocketDialer connects to a router over WebSocket, negotiating the
// "wamp.2.<serializer>" subprotocol.
type WebSocketDialer struct {
	TLSConfig    *tls.Config
	Headers      map[string][]string
	AuthProvider AuthorizationProvider
	// ReadLimit caps the size of a received frame in bytes. Zero means
	// DefaultReadLimit, a negative value disables the limit.
	ReadLimit int64
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string, s serialize.Serializer) (Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	dialOptions := &websocket.DialOptions{
		Subprotocols: []string{s.Subprotocol()},
	}

	if d.Headers != nil {
		dialOptions.HTTPHeader = make(http.Header)
		for key, values := range d.Headers {
			dialOptions.HTTPHeader[key] = values
		}
	}

	// The provider wins over a static Authorization header.
	if d.AuthProvider != nil {
		authValue, err := d.AuthProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get authorization: %w", err)
		}
		if authValue != "" {
			if dialOptions.HTTPHeader == nil {
				dialOptions.HTTPHeader = make(http.Header)
			}
			dialOptions.HTTPHeader.Set("Authorization", authValue)
		}
	}

	if d.TLSConfig != nil {
		dialOptions.HTTPClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: d.TLSConfig},
		}
	}

	conn, _, err := websocket.Dial(ctx, endpoint, dialOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	if conn.Subprotocol() != s.Subprotocol() {
		conn.Close(websocket.StatusProtocolError, "unsupported subprotocol")
		return nil, fmt.Errorf("router did not accept subprotocol %q (got %q)", s.Subprotocol(), conn.Subprotocol())
	}

	switch {
	case d.ReadLimit == 0:
		conn.SetReadLimit(DefaultReadLimit)
	case d.ReadLimit < 0:
		conn.SetReadLimit(-1)
	default:
		conn.SetReadLimit(d.ReadLimit)
	}

	msgType := websocket.MessageText
	if s.Binary() {
		msgType = websocket.MessageBinary
	}

	return &webSocketTransport{conn: conn, msgType: msgType}, nil
}

type webSocketTransport struct {
	conn      *websocket.Conn
	msgType   websocket.MessageType
	closeOnce sync.Once
	closeErr  error
}

func (t *webSocketTransport) Send(ctx context.Context, frame []byte) error {
	return t.conn.Write(ctx, t.msgType, frame)
}

func (t *webSocketTransport) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (t *webSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close(websocket.StatusNormalClosure, "")
	})
	return t.closeErr
}
