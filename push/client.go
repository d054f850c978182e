// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package push implements the blocking HTTP/1.0 publication client: one TCP
// connection per request, "Connection: close", no keep-alive, no TLS.
// Publication is always best-effort; callers log failures and continue.
package push

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

// chunkSize bounds how much of a file is held in memory at once while
// streaming a POST body; the client never allocates a buffer the size of
// the whole file.
const chunkSize = 32 * 1024

// Config carries everything needed to reach the receiver.
type Config struct {
	ServerIP   string `yaml:"server_ip"`
	ServerPort int    `yaml:"server_port"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

// DefaultConfig is the receiver's well-known endpoint: port 8765, 5s timeout.
func DefaultConfig() Config {
	return Config{ServerIP: "127.0.0.1", ServerPort: 8765, TimeoutMS: 5000}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ServerIP == "" {
		c.ServerIP = d.ServerIP
	}
	if c.ServerPort == 0 {
		c.ServerPort = d.ServerPort
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = d.TimeoutMS
	}
	return c
}

func (c Config) addr() string {
	return net.JoinHostPort(c.ServerIP, strconv.Itoa(c.ServerPort))
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Client posts JSON events and files to the receiver's fixed endpoints. It
// holds no state across requests; every call opens and closes its own
// connection.
type Client struct {
	cfg Config
	log *log.Logger
}

// New builds a Client against cfg, logging failures under the given logger.
func New(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{cfg: cfg.WithDefaults(), log: logger.With("component", "push")}
}

// dial opens the connection, applying the configured timeout to the connect
// phase only. The send and receive phases each get their own deadline,
// armed separately in post, so a slow write cannot eat into the read's
// timeout budget or vice versa.
func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", c.cfg.addr(), c.cfg.timeout())
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func writeRequestLine(w *bufio.Writer, path string, contentType string, contentLength int64, extraHeaders map[string]string) error {
	if _, err := fmt.Fprintf(w, "POST %s HTTP/1.0\r\n", path); err != nil {
		return err
	}
	headers := textproto.MIMEHeader{}
	headers.Set("Content-Type", contentType)
	headers.Set("Content-Length", strconv.FormatInt(contentLength, 10))
	headers.Set("Connection", "close")
	for k, v := range extraHeaders {
		headers.Set(k, v)
	}
	for k, vs := range headers {
		for _, v := range vs {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

// post writes an HTTP/1.0 request with body read from r (exactly
// contentLength bytes) and discards the response body, returning the status
// line's error state. The whole call is best-effort: any failure is
// returned to the caller to log, never panics.
func (c *Client) post(path, contentType string, contentLength int64, extraHeaders map[string]string, r io.Reader) error {
	conn, err := c.dial()
	if err != nil {
		return fmt.Errorf("push: dial: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.timeout())); err != nil {
		return fmt.Errorf("push: set write deadline: %w", err)
	}
	w := bufio.NewWriter(conn)
	if err := writeRequestLine(w, path, contentType, contentLength, extraHeaders); err != nil {
		return fmt.Errorf("push: write headers: %w", err)
	}
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(w, r, buf); err != nil {
		return fmt.Errorf("push: write body: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("push: flush: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.timeout())); err != nil {
		return fmt.Errorf("push: set read deadline: %w", err)
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("push: read status: %w", err)
	}
	if len(resp) >= len("HTTP/1.0 ") {
		status := resp[len("HTTP/1.0 "):]
		if len(status) < 3 || status[0] != '2' {
			return fmt.Errorf("push: %s: unexpected status %q", path, resp)
		}
	}
	return nil
}

// PostJSON posts payload to /event with Content-Type application/json.
func (c *Client) PostJSON(payload []byte) error {
	err := c.post("/event", "application/json", int64(len(payload)), nil, bytes.NewReader(payload))
	if err != nil {
		c.log.Error("event post failed", "err", err)
	}
	return err
}

// PostFile streams the file at path to endpoint with the given content type,
// setting X-Filename to filename. It never reads the whole file into memory.
func (c *Client) PostFile(endpoint, contentType, path, filename string) error {
	f, err := os.Open(path)
	if err != nil {
		c.log.Error("open staged file failed", "path", path, "err", err)
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		c.log.Error("stat staged file failed", "path", path, "err", err)
		return err
	}
	err = c.post(endpoint, contentType, fi.Size(), map[string]string{"X-Filename": filename}, f)
	if err != nil {
		c.log.Error("file post failed", "endpoint", endpoint, "err", err)
	}
	return err
}

// PostFF is the /ff convenience wrapper for the RMS binary block file.
func (c *Client) PostFF(path, filename string) error {
	return c.PostFile("/ff", "application/octet-stream", path, filename)
}

// PostStack is the /stack convenience wrapper for the stacker's encoded
// image.
func (c *Client) PostStack(path, filename string) error {
	return c.PostFile("/stack", "image/jpeg", path, filename)
}

