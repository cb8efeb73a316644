package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/1satmarket/marketapi/pkg/metrics"
	"github.com/1satmarket/marketapi/pkg/retry"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	"gopkg.in/cenkalti/backoff.v1"
)

// Subscriber holds the upstream event stream open and feeds it to a Handler.
type Subscriber struct {
	url     string
	handler *Handler
	conn    *http.Client
	logger  *zap.Logger

	// Backoff paces reconnects. Its Attempts field is ignored.
	Backoff retry.Policy
}

// NewSubscriber returns a Subscriber for url. conn may be nil.
func NewSubscriber(url string, handler *Handler, conn *http.Client, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		url:     url,
		handler: handler,
		conn:    conn,
		logger:  logger.Named("sse"),
		Backoff: retry.Reconnect,
	}
}

// Run subscribes until ctx is done, reconnecting with jittered exponential
// backoff. A connection that stayed up longer than the backoff ceiling
// resets the schedule.
func (s *Subscriber) Run(ctx context.Context) {
	schedule := s.Backoff.Backoff()
	for {
		started := time.Now()
		err := s.subscribe(ctx)
		if ctx.Err() != nil {
			s.logger.Info("event stream stopped")
			return
		}
		if time.Since(started) > s.Backoff.Max {
			schedule.Reset()
		}
		delay := schedule.Fail()
		metrics.EventReconnects.Inc()
		s.logger.Warn("event stream disconnected",
			zap.Error(err),
			zap.Int("failures", schedule.Failures()),
			zap.Duration("retry_in", delay),
		)
		if !retry.Sleep(ctx, delay) {
			return
		}
	}
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	client := sse.NewClient(s.url)
	if s.conn != nil {
		client.Connection = s.conn
	}
	// Reconnects are driven by Run so cancellation and backoff stay in one place.
	client.ReconnectStrategy = &backoff.StopBackOff{}
	client.OnConnect(func(*sse.Client) {
		s.logger.Info("event stream connected", zap.String("url", s.url))
	})

	err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		if msg == nil || len(msg.Event) == 0 {
			return
		}
		s.dispatch(ctx, string(msg.Event), msg.Data)
	})
	if err == nil {
		err = errors.New("stream closed")
	}
	return err
}

func (s *Subscriber) dispatch(ctx context.Context, name string, data []byte) {
	metrics.EventsReceived.WithLabelValues(name).Inc()
	if err := s.handler.Handle(ctx, name, data); err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			s.logger.Debug("ignoring event", zap.String("event", name))
			return
		}
		metrics.EventErrors.WithLabelValues(name).Inc()
		s.logger.Warn("failed to apply event",
			zap.String("event", name),
			zap.ByteString("data", data),
			zap.Error(err),
		)
	}
}
