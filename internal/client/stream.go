package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/session"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	frameData   = "data"
	frameStatus = "status"
)

// frame is one JSON message on the menu stream.
type frame struct {
	Type string `json:"type"`
	domain.MenuEvent
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WSStream adapts a websocket connection to session.Stream. Frames are read
// and delivered on a single goroutine.
type WSStream struct {
	conn *websocket.Conn
	log  log.FieldLogger

	once      sync.Once
	closeOnce sync.Once
	closed    chan struct{}
}

func NewWSStream(conn *websocket.Conn, logger log.FieldLogger) *WSStream {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &WSStream{
		conn:   conn,
		log:    logger,
		closed: make(chan struct{}),
	}
}

func (s *WSStream) Listen(h session.Handlers) {
	s.once.Do(func() {
		go s.readLoop(h)
	})
}

func (s *WSStream) readLoop(h session.Handlers) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(h, err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.log.Warnf("Dropping malformed stream frame: %v", err)
			continue
		}

		switch f.Type {
		case frameData, "":
			if h.Data != nil {
				h.Data(f.MenuEvent)
			}
		case frameStatus:
			if h.Status != nil {
				h.Status(domain.StreamStatus{Code: f.Code, Details: f.Details})
			}
		default:
			s.log.Debugf("Ignoring stream frame of type %q", f.Type)
		}
	}
}

func (s *WSStream) finish(h session.Handlers, err error) {
	select {
	case <-s.closed:
		// Cancelled locally, nothing to report.
		return
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		if h.End != nil {
			h.End()
		}
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		err = fmt.Errorf("menu stream closed with code %d: %s", closeErr.Code, closeErr.Text)
	}
	if h.Error != nil {
		h.Error(err)
	}
}

// Cancel sends a close frame and tears down the connection without waiting
// for the read loop.
func (s *WSStream) Cancel() {
	s.closeOnce.Do(func() {
		close(s.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "cancelled")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}
