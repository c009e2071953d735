// Package spjs connects to a Serial Port JSON Server over websocket.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name                      string
	Friendly                  string
	SerialNumber              string
	DeviceClass               string
	IsOpen                    bool
	IsPrimary                 bool
	RelatedNames              []string
	Baud                      int
	BufferAlgorithm           string
	AvailableBufferAlgorithms []string
	Ver                       float64
	USBVID                    string
	USBPID                    string
	FeedRateOverride          float64
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

// Client is a single websocket session with an SPJS server.
type Client struct {
	ws *websocket.Conn

	wMx      sync.Mutex
	incoming chan interface{}

	mx   sync.Mutex
	err  error
	done chan struct{}
}

// Dial connects to the SPJS websocket at url, e.g. ws://host:8989/ws.
func Dial(url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		ws:       ws,
		incoming: make(chan interface{}, 1000),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Messages returns decoded server messages. It is closed when the
// connection ends.
func (c *Client) Messages() <-chan interface{} { return c.incoming }

// Err returns the error that ended the connection.
func (c *Client) Err() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.err
}

func parseSPJSMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Type", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (c *Client) readLoop() {
	defer close(c.incoming)
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mx.Lock()
			c.err = err
			c.mx.Unlock()
			log.Debug().Err(err).Msg("spjs read loop stopped")
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			log.Warn().Err(err).Msg("spjs decode")
			continue
		}
		val, err := parseSPJSMessage(data, msg)
		if err != nil {
			log.Debug().Err(err).Msg("spjs parse")
			continue
		}
		c.incoming <- val
	}
}

// WriteString sends a raw SPJS command such as `list`.
func (c *Client) WriteString(data string) error {
	c.wMx.Lock()
	defer c.wMx.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(data))
}

// SendJSON queues data on a port with the `sendjson` command.
func (c *Client) SendJSON(v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sendjson (marshal): %w", err)
	}
	return c.WriteString("sendjson " + string(data))
}

// List requests the server's serial ports and waits for the reply.
// Other messages received meanwhile are discarded.
func (c *Client) List(timeout time.Duration) ([]SerialPort, error) {
	if err := c.WriteString("list"); err != nil {
		return nil, err
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case msg, ok := <-c.incoming:
			if !ok {
				return nil, io.ErrUnexpectedEOF
			}
			if l, ok := msg.(*SerialPortList); ok {
				return l.SerialPorts, nil
			}
		case <-t.C:
			return nil, errors.New("timeout waiting for port list")
		}
	}
}

// Close ends the session and waits for the read loop to exit.
func (c *Client) Close() error {
	c.wMx.Lock()
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wMx.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}
