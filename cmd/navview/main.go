// Command navview renders the observer stream of a running server in a terminal.
package main

import (
	"flag"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"

	"pathcraft.ai/internal/logging"
	"pathcraft.ai/internal/observerproto"
)

func main() {
	var (
		url   = flag.String("url", "ws://127.0.0.1:8080/admin/v1/observer/ws", "observer ws url")
		focus = flag.String("focus", "", "only show this entity")
		paths = flag.Bool("paths", true, "draw freshly installed paths")
	)
	flag.Parse()

	logger := logging.Component(logging.New(logging.Options{}), "navview")

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Paths:           *paths,
		FocusEntityID:   *focus,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.WithError(err).Fatal("subscribe")
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		logger.WithError(err).Fatal("screen")
	}
	if err := screen.Init(); err != nil {
		logger.WithError(err).Fatal("screen init")
	}
	defer screen.Fini()

	frames := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			frames <- msg
		}
	}()

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	st := &viewState{}
	redraw := time.NewTicker(100 * time.Millisecond)
	defer redraw.Stop()

	for {
		select {
		case err := <-readErr:
			screen.Fini()
			logger.WithError(err).Info("observer stream closed")
			return
		case msg := <-frames:
			if err := st.apply(msg); err != nil {
				logger.WithError(err).Debug("bad frame")
			}
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return
				}
				if ev.Rune() == 'p' {
					sub.Paths = !sub.Paths
					_ = conn.WriteJSON(sub)
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		case <-redraw.C:
			cols, rows := screen.Size()
			if rows < 2 {
				continue
			}
			screen.Clear()
			st.render(cols, rows-1).Flush(screen)
			drawText(screen, 0, rows-1, st.status())
			screen.Show()
		}
	}
}

func drawText(s tcell.Screen, x, y int, text string) {
	for i, r := range text {
		s.SetContent(x+i, y, r, nil, tcell.StyleDefault.Reverse(true))
	}
}
