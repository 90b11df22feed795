package websocketPkg

import (
	"Plan2Protect/pkg/depth"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var (
	ErrDepthServiceUnavailable = errors.New("depth service unavailable")
	ErrMalformedDepth          = errors.New("malformed depth response")
)

type IDepthClient interface {
	depth.Estimator
	IsConnected() bool
	Reconnect() error
	Close()
}

type depthResponse struct {
	DepthMap [][]float64 `json:"depth_map"`
	Error    string      `json:"error,omitempty"`
}

// depthClient talks to a monocular depth inference service over a single
// websocket. Each request sends the PNG-encoded photo as one binary frame and
// expects one JSON reply carrying the depth grid.
type depthClient struct {
	url          string
	log          *logrus.Logger
	conn         *websocket.Conn
	mu           sync.Mutex
	reqMu        sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewDepthClient(url string, log *logrus.Logger) IDepthClient {
	client := &depthClient{
		url:          url,
		log:          log,
		pingInterval: 30 * time.Second,
		readTimeout:  30 * time.Second,
		writeTimeout: 10 * time.Second,
	}

	go client.connectInBackground()

	return client
}

func (c *depthClient) connectInBackground() {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if c.IsConnected() {
		return
	}
	if err := c.Reconnect(); err != nil {
		c.log.Warnf("Initial connection to depth service failed: %v. Will retry on demand.", err)
		return
	}
	c.log.Infof("Connected to depth service at %s", c.url)
}

func (c *depthClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *depthClient) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if c.url == "" {
		return fmt.Errorf("%w: DEPTH_SERVICE_URL not configured", ErrDepthServiceUnavailable)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to %s: %v", ErrDepthServiceUnavailable, c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout)); err != nil {
			c.log.Debugf("Error sending pong to depth service: %v", err)
		}
		return nil
	})

	c.conn = conn
	go c.keepAlive(conn)

	return nil
}

func (c *depthClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *depthClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Warnf("Ping to depth service failed, marking connection as dead: %v", err)
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

func (c *depthClient) getConnection() (*websocket.Conn, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		return conn, nil
	}

	if err := c.Reconnect(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrDepthServiceUnavailable
	}
	return c.conn, nil
}

func (c *depthClient) dropConnection(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

// Estimate implements depth.Estimator. Requests are serialised over the one
// connection so that replies cannot be matched to the wrong photo.
func (c *depthClient) Estimate(img image.Image) (depth.DepthMap, error) {
	if img == nil {
		return depth.DepthMap{}, fmt.Errorf("%w: nil image", depth.ErrInvalidImage)
	}

	var frame bytes.Buffer
	if err := png.Encode(&frame, img); err != nil {
		return depth.DepthMap{}, fmt.Errorf("error encoding frame: %w", err)
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	conn, err := c.getConnection()
	if err != nil {
		return depth.DepthMap{}, err
	}

	c.mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	err = conn.WriteMessage(websocket.BinaryMessage, frame.Bytes())
	c.mu.Unlock()
	if err != nil {
		c.dropConnection(conn)
		return depth.DepthMap{}, fmt.Errorf("%w: error sending frame: %v", ErrDepthServiceUnavailable, err)
	}

	c.log.Debugf("Sent frame of %d bytes to depth service", frame.Len())

	conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.dropConnection(conn)
		return depth.DepthMap{}, fmt.Errorf("%w: error reading reply: %v", ErrDepthServiceUnavailable, err)
	}
	conn.SetReadDeadline(time.Time{})

	var resp depthResponse
	if err := jsoniter.Unmarshal(message, &resp); err != nil {
		return depth.DepthMap{}, fmt.Errorf("%w: %v", ErrMalformedDepth, err)
	}
	if resp.Error != "" {
		return depth.DepthMap{}, fmt.Errorf("depth service error: %s", resp.Error)
	}

	dm, err := depth.NewDepthMapFromRows(resp.DepthMap)
	if err != nil {
		return depth.DepthMap{}, fmt.Errorf("%w: ragged or empty grid", ErrMalformedDepth)
	}

	b := img.Bounds()
	if dm.Width() != b.Dx() || dm.Height() != b.Dy() {
		return depth.DepthMap{}, fmt.Errorf("%w: got %dx%d grid for %dx%d image",
			ErrMalformedDepth, dm.Width(), dm.Height(), b.Dx(), b.Dy())
	}

	return dm, nil
}
