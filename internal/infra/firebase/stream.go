package firebase

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

const maxReconnectBackoff = 30 * time.Second

// errStreamCancelled is sent by the database when the rules no longer allow
// reading the location. Reconnecting would fail the same way.
var errStreamCancelled = errors.New("event stream cancelled by the database")

// event is one server-sent event.
type event struct {
	name string
	data string
}

type eventPayload struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// subscription is a live event stream for one user.
type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// Subscribe opens the user's event stream and delivers a full snapshot after
// every change. The first connection is made synchronously so that auth
// problems surface to the caller; later drops reconnect with backoff until
// the subscription is closed or ctx is done.
func (s *Store) Subscribe(ctx context.Context, userID string, handler port.SnapshotHandler) (port.Subscription, error) {
	ctx, span := tracer.Start(ctx, "Firebase.Subscribe")
	span.SetAttributes(attribute.String("user.id", userID))
	defer span.End()

	if err := s.streams.Acquire(ctx); err != nil {
		return nil, &domain.ErrPersistence{Op: "subscribe", Err: err}
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)

	body, err := s.connect(streamCtx, userID)
	if err != nil {
		stop()
		cancel()
		s.streams.Release()
		return nil, &domain.ErrPersistence{Op: "subscribe", Err: err}
	}

	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer s.streams.Release()
		defer stop()
		s.run(streamCtx, userID, body, handler)
	}()
	return sub, nil
}

// connect opens the text/event-stream for users/{uid}.
func (s *Store) connect(ctx context.Context, userID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.url(usersRoot, userID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &statusError{Status: resp.StatusCode, Body: string(b)}
	}
	return resp.Body, nil
}

// run consumes streams until ctx is done, reconnecting after drops.
func (s *Store) run(ctx context.Context, userID string, body io.ReadCloser, handler port.SnapshotHandler) {
	backoff := s.reconnectBackoff
	for {
		err := s.consume(ctx, userID, body, handler)
		body.Close()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errStreamCancelled) {
			s.logger.Error("firebase: event stream cancelled, not reconnecting", zap.String("user_id", userID))
			return
		}
		s.logger.Warn("firebase: event stream dropped", zap.String("user_id", userID), zap.Error(err))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxReconnectBackoff)

			body, err = s.connect(ctx, userID)
			if err == nil {
				s.logger.Info("firebase: event stream reconnected", zap.String("user_id", userID))
				backoff = s.reconnectBackoff
				break
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("firebase: reconnect failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// consume reads events until the stream ends. A put at the root carries the
// whole tree; any other change triggers a fresh read so that handlers always
// receive complete collections.
func (s *Store) consume(ctx context.Context, userID string, body io.Reader, handler port.SnapshotHandler) error {
	events := make(chan event)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		readErr <- readEvents(body, events, done)
		close(events)
	}()

	for ev := range events {
		switch ev.name {
		case "keep-alive":
			continue
		case "cancel":
			return errStreamCancelled
		case "auth_revoked":
			return errors.New("stream credential revoked")
		case "put", "patch":
		default:
			s.logger.Debug("firebase: ignoring event", zap.String("event", ev.name))
			continue
		}

		var payload eventPayload
		if err := json.Unmarshal([]byte(ev.data), &payload); err != nil {
			s.logger.Warn("firebase: malformed event", zap.String("user_id", userID), zap.Error(err))
			continue
		}

		var snap *domain.Snapshot
		var err error
		if ev.name == "put" && payload.Path == "/" {
			snap, err = s.decode(userID, payload.Data)
		} else {
			snap, err = s.Snapshot(ctx, userID)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("firebase: failed to refresh snapshot", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		handler(snap)
	}
	return <-readErr
}

// readEvents parses the text/event-stream framing and sends complete events.
func readEvents(r io.Reader, out chan<- event, done <-chan struct{}) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	var cur event
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.name != "" || len(data) > 0 {
				cur.data = strings.Join(data, "\n")
				select {
				case out <- cur:
				case <-done:
					return nil
				}
			}
			cur, data = event{}, nil
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return io.EOF
}
