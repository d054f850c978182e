// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package detector

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/istorrs/meteor/ftp"
	"github.com/istorrs/meteor/push"
	"github.com/istorrs/meteor/trig"
)

// acceptingServer acknowledges every request with 200 OK and counts events
// vs. file uploads by path, so tests can assert exactly one of each was
// sent without caring about body bytes.
type acceptingServer struct {
	ln     net.Listener
	events chan string
	files  chan string
}

func startAcceptingServer(t *testing.T) *acceptingServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &acceptingServer{ln: ln, events: make(chan string, 16), files: make(chan string, 16)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handle(conn)
		}
	}()
	return s
}

func (s *acceptingServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	line, _ := r.ReadString('\n')
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return
	}
	path := parts[1]

	contentLength := 0
	for {
		h, _ := r.ReadString('\n')
		h = strings.TrimRight(h, "\r\n")
		if h == "" {
			break
		}
		if kv := strings.SplitN(h, ": ", 2); len(kv) == 2 && kv[0] == "Content-Length" {
			contentLength, _ = strconv.Atoi(kv[1])
		}
	}
	buf := make([]byte, contentLength)
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			break
		}
	}
	switch path {
	case "/event":
		s.events <- string(buf)
	case "/ff":
		s.files <- path
	}
	conn.Write([]byte("HTTP/1.0 200 OK\r\n\r\n"))
}

func (s *acceptingServer) close() { s.ln.Close() }

func (s *acceptingServer) client(t *testing.T) *push.Client {
	t.Helper()
	addr := s.ln.Addr().(*net.TCPAddr)
	return push.New(push.Config{ServerIP: addr.IP.String(), ServerPort: addr.Port, TimeoutMS: 2000}, log.Default())
}

func testConfig(t *testing.T) ftp.Config {
	cfg := ftp.DefaultConfig().WithDefaults()
	cfg.DetectW, cfg.DetectH = 50, 50
	cfg.BlockFrames = 30
	cfg.FFTmpDir = t.TempDir()
	return cfg
}

func newTestEngine(t *testing.T, cfg ftp.Config, client *push.Client) *Engine {
	t.Helper()
	tab := trig.New(cfg.ThetaSteps)
	e := New(cfg, tab, client, log.Default())
	t.Cleanup(e.Close)
	return e
}

func feedConstant(e *Engine, cfg ftp.Config, value byte, startTsMs uint64) {
	frame := make([]byte, cfg.DetectW*cfg.DetectH)
	for i := range frame {
		frame[i] = value
	}
	for i := 0; i < cfg.BlockFrames; i++ {
		e.PushFrame(frame, cfg.DetectW, startTsMs+uint64(i)*40)
	}
}

func waitForStats(t *testing.T, e *Engine, want func(Stats) bool) Stats {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var s Stats
	for time.Now().Before(deadline) {
		s = e.Stats()
		if want(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stats did not reach expected condition, last seen %+v", s)
	return s
}

func TestEngine_noEventOnConstantLuma(t *testing.T) {
	s := startAcceptingServer(t)
	defer s.close()
	cfg := testConfig(t)
	e := newTestEngine(t, cfg, s.client(t))

	feedConstant(e, cfg, 20, 1000)

	got := waitForStats(t, e, func(st Stats) bool { return st.BlocksProcessed == 1 })
	if got.DetectionsPublished != 0 {
		t.Fatalf("DetectionsPublished = %d, want 0", got.DetectionsPublished)
	}
	entries, _ := os.ReadDir(cfg.FFTmpDir)
	if len(entries) != 0 {
		t.Fatalf("staging dir not empty: %v", entries)
	}
}

func TestEngine_singleDiagonalStreakPublishesOnce(t *testing.T) {
	s := startAcceptingServer(t)
	defer s.close()
	cfg := testConfig(t)
	e := newTestEngine(t, cfg, s.client(t))

	frame := make([]byte, cfg.DetectW*cfg.DetectH)
	for i := range frame {
		frame[i] = 10
	}
	brightFrame := append([]byte(nil), frame...)
	for i := 10; i <= 30; i++ {
		brightFrame[i*cfg.DetectW+i] = 200
	}

	for i := 0; i < cfg.BlockFrames; i++ {
		f := frame
		if i == 15 {
			f = brightFrame
		}
		e.PushFrame(f, cfg.DetectW, 1000+uint64(i)*40)
	}

	got := waitForStats(t, e, func(st Stats) bool { return st.DetectionsPublished == 1 || st.PublishFailures > 0 })
	if got.DetectionsPublished != 1 {
		t.Fatalf("DetectionsPublished = %d, want 1", got.DetectionsPublished)
	}

	select {
	case <-s.events:
	case <-time.After(time.Second):
		t.Fatalf("no /event POST received")
	}
	select {
	case <-s.files:
	case <-time.After(time.Second):
		t.Fatalf("no /ff POST received")
	}

	entries, _ := os.ReadDir(cfg.FFTmpDir)
	if len(entries) != 0 {
		t.Fatalf("staging file not cleaned up: %v", entries)
	}
}

func TestEngine_globalBrightnessSurgeSkipsPublication(t *testing.T) {
	s := startAcceptingServer(t)
	defer s.close()
	cfg := testConfig(t)
	cfg.MaxCandidates = 100 // small so the whole frame saturates it easily.
	e := newTestEngine(t, cfg, s.client(t))

	frame := make([]byte, cfg.DetectW*cfg.DetectH)
	for i := range frame {
		frame[i] = 10
	}
	surged := make([]byte, len(frame))
	for i := range surged {
		surged[i] = 110
	}

	// One surged frame: avg 13, std 18, so max-avg = 97 clears k*std = 90 at
	// every pixel. A surge held over many frames raises std enough that
	// max-avg no longer clears k*std (frames 10..20 give 64 vs 240).
	for i := 0; i < cfg.BlockFrames; i++ {
		f := frame
		if i == 15 {
			f = surged
		}
		e.PushFrame(f, cfg.DetectW, 1000+uint64(i)*40)
	}

	got := waitForStats(t, e, func(st Stats) bool { return st.BlocksProcessed == 1 })
	if got.CandidatesSaturated != 1 {
		t.Fatalf("CandidatesSaturated = %d, want 1", got.CandidatesSaturated)
	}
	if got.DetectionsPublished != 0 {
		t.Fatalf("DetectionsPublished = %d, want 0", got.DetectionsPublished)
	}
}

func TestEngine_shortStreakRejectedOnVotes(t *testing.T) {
	s := startAcceptingServer(t)
	defer s.close()
	cfg := testConfig(t)
	e := newTestEngine(t, cfg, s.client(t))

	frame := make([]byte, cfg.DetectW*cfg.DetectH)
	for i := range frame {
		frame[i] = 10
	}
	brightFrame := append([]byte(nil), frame...)
	for i := 20; i < 28; i++ { // 8px line: enough candidates to reach Hough, but no cell gets more than 8 votes, under min_votes=10.
		brightFrame[20*cfg.DetectW+i] = 200
	}

	for i := 0; i < cfg.BlockFrames; i++ {
		f := frame
		if i == 5 {
			f = brightFrame
		}
		e.PushFrame(f, cfg.DetectW, 1000+uint64(i)*40)
	}

	got := waitForStats(t, e, func(st Stats) bool { return st.BlocksProcessed == 1 })
	if got.DetectionsPublished != 0 {
		t.Fatalf("DetectionsPublished = %d, want 0 (streak too short)", got.DetectionsPublished)
	}
}

func TestEngine_backpressureDropsNewerBlockNotOlder(t *testing.T) {
	cfg := testConfig(t)
	tab := trig.New(cfg.ThetaSteps)
	e := New(cfg, tab, push.New(push.Config{ServerIP: "127.0.0.1", ServerPort: 1}, log.Default()), log.Default())
	e.Close() // stop the worker so pending never drains, to make backpressure deterministic.

	// Manually occupy the single handoff slot, as a live worker would leave
	// it occupied while busy processing a prior block.
	e.pending <- pendingBlock{idx: 0, completionTs: 1}

	frame := make([]byte, cfg.DetectW*cfg.DetectH)
	for i := 0; i < cfg.BlockFrames; i++ {
		e.PushFrame(frame, cfg.DetectW, uint64(i))
	}

	got := e.Stats()
	if got.BlocksDropped != 1 {
		t.Fatalf("BlocksDropped = %d, want 1", got.BlocksDropped)
	}
	if got.BlocksProcessed != 0 {
		t.Fatalf("BlocksProcessed = %d, want 0 (worker never ran)", got.BlocksProcessed)
	}
	// Exactly two blocks allocated for the engine's whole lifetime, never more.
	if len(e.blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(e.blocks))
	}
}

func TestLineEndpoints_rejectsDegenerateRho(t *testing.T) {
	if _, _, _, _, ok := lineEndpoints(1e9, 45, 50, 50); ok {
		t.Fatalf("expected no valid intersections for an out-of-frame rho")
	}
}

func TestLineLength_pythagorean(t *testing.T) {
	if got := lineLength(0, 0, 3, 4); got != 5 {
		t.Fatalf("lineLength = %v, want 5", got)
	}
}
