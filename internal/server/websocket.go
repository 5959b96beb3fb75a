package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"dupsieve/internal/engine"
	"dupsieve/internal/models"
)

// clientMessage is anything a client sends
type clientMessage struct {
	Type      string `json:"type"` // ping, tab, scan, stop
	TabActive bool   `json:"tab_active,omitempty"`
	Folder    string `json:"folder,omitempty"`
}

type statusMessage struct {
	Type    string  `json:"type"`
	Percent float64 `json:"percent,omitempty"`
	Message string  `json:"message,omitempty"`
}

type resultMessage struct {
	Type        string  `json:"type"` // done or cancelled
	Folder      string  `json:"folder"`
	Images      int     `json:"images"`
	Failures    int     `json:"failures"`
	Groups      int     `json:"groups"`
	ExactGroups int     `json:"exact_groups"`
	Duplicates  int     `json:"duplicates"`
	Seconds     float64 `json:"seconds"`
}

func newResultMessage(r *models.Result) resultMessage {
	typ := "done"
	if r.Cancelled {
		typ = "cancelled"
	}
	return resultMessage{
		Type:        typ,
		Folder:      r.Folder,
		Images:      len(r.Records),
		Failures:    len(r.Failures),
		Groups:      len(r.Groups),
		ExactGroups: len(r.ExactGroups),
		Duplicates:  r.TotalDuplicates(),
		Seconds:     r.Duration.Seconds(),
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// Track active client
	s.mu.Lock()
	s.activeClients++
	s.lastActivity = time.Now()
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	var scans sync.WaitGroup
	defer func() {
		cancel()
		scans.Wait()
		s.mu.Lock()
		s.activeClients--
		s.mu.Unlock()
	}()

	_ = wsjson.Write(ctx, conn, statusMessage{Type: "connected"})

	var (
		runMu   sync.Mutex
		running *engine.Engine
	)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			s.logger.Debug("websocket read error", "error", err)
			return
		}
		s.recordActivity()

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = wsjson.Write(ctx, conn, statusMessage{Type: "error", Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case "ping":
			_ = wsjson.Write(ctx, conn, statusMessage{Type: "pong"})
		case "tab":
			s.setTabActive(msg.TabActive)
		case "stop":
			runMu.Lock()
			if running != nil {
				running.Stop()
			}
			runMu.Unlock()
		case "scan":
			if !s.scanMu.TryLock() {
				_ = wsjson.Write(ctx, conn, statusMessage{Type: "error", Message: "a scan is already running"})
				continue
			}
			e, err := s.newEngine(ctx, conn)
			if err != nil {
				s.scanMu.Unlock()
				_ = wsjson.Write(ctx, conn, statusMessage{Type: "error", Message: err.Error()})
				continue
			}
			runMu.Lock()
			running = e
			runMu.Unlock()

			scans.Add(1)
			go func(folder string) {
				defer scans.Done()
				defer s.scanMu.Unlock()
				s.runScan(ctx, conn, e, folder)
			}(msg.Folder)
		default:
			_ = wsjson.Write(ctx, conn, statusMessage{Type: "error", Message: "unknown message type " + msg.Type})
		}
	}
}

func (s *Server) newEngine(ctx context.Context, conn *websocket.Conn) (*engine.Engine, error) {
	return engine.New(s.cfg,
		engine.WithStore(s.store),
		engine.WithLogger(s.logger),
		engine.WithProgress(func(p float64) {
			_ = wsjson.Write(ctx, conn, statusMessage{Type: "progress", Percent: p})
		}))
}

func (s *Server) runScan(ctx context.Context, conn *websocket.Conn, e *engine.Engine, folder string) {
	abs, err := filepath.Abs(folder)
	if err != nil || folder == "" {
		_ = wsjson.Write(ctx, conn, statusMessage{Type: "error", Message: "invalid folder"})
		return
	}

	result, err := e.Run(ctx, abs)
	if err != nil {
		s.logger.Warn("scan failed", "folder", abs, "error", err)
		_ = wsjson.Write(ctx, conn, statusMessage{Type: "error", Message: err.Error()})
		return
	}
	_ = wsjson.Write(ctx, conn, newResultMessage(result))
}
