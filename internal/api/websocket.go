package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marinraf/StimuliApp-sub001/internal/events"
)

const (
	// Number of recent events sent on connection
	recentEventsCount = 50

	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// Must be less than pongWait
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The console and lab dashboards are served from other origins.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// parseEventFilter reads ?filter=trial.,section. (name prefixes),
// ?section=main and ?level=info.
func parseEventFilter(r *http.Request) (events.Filter, error) {
	q := r.URL.Query()
	f := events.Filter{Section: q.Get("section"), MinLevel: q.Get("level")}
	for _, p := range strings.Split(q.Get("filter"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			f.Prefixes = append(f.Prefixes, p)
		}
	}
	if f.MinLevel != "" && !events.ValidLevel(f.MinLevel) {
		return f, fmt.Errorf("unknown level %q", f.MinLevel)
	}
	return f, nil
}

// parseSince reads ?since=<seq>; ok is false when it is absent.
func parseSince(r *http.Request) (seq uint64, ok bool, err error) {
	s := r.URL.Query().Get("since")
	if s == "" {
		return 0, false, nil
	}
	seq, err = strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid since %q", s)
	}
	return seq, true, nil
}

func writeEvent(conn *websocket.Conn, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// wsEventsHandler streams the run log: the backlog first (recent events,
// or everything after ?since=), then live ones.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	since, resume, err := parseSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	// Subscribe before reading the backlog; live events already sent from
	// the backlog are skipped by sequence number.
	sub := events.Subscribe(filter)
	closeAll := func() {
		if n := sub.Dropped(); n > 0 {
			log.Printf("ws client %s missed %d events", r.RemoteAddr, n)
		}
		events.Unsubscribe(sub)
		conn.Close()
	}

	backlog := events.RecentEvents(recentEventsCount, filter)
	if resume {
		backlog = events.EventsSince(since, filter)
	}
	var last uint64
	for _, e := range backlog {
		if err := writeEvent(conn, e); err != nil {
			log.Printf("ws write recent event failed: %v", err)
			closeAll()
			return
		}
		last = e.Seq
	}

	// The reader handles pongs and notices the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			closeAll()
			return

		case e, ok := <-sub.C:
			if !ok {
				conn.Close()
				return
			}
			if e.Seq <= last {
				continue
			}
			if err := writeEvent(conn, e); err != nil {
				log.Printf("ws write event failed: %v", err)
				closeAll()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				closeAll()
				return
			}
		}
	}
}
