package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue reservation events are published to.
const DefaultQueue = "reservation.events"

// Publisher sends events to a durable RabbitMQ queue.  The connection is
// opened lazily on the first event and re-opened after a failure, so a
// broker outage costs the events published during it and nothing else.
type Publisher struct {
    url    string
    queue  string
    logger *slog.Logger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the broker at url.  An empty queue
// name selects DefaultQueue.
func NewPublisher(url, queue string, logger *slog.Logger) *Publisher {
    if queue == "" {
        queue = DefaultQueue
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &Publisher{url: url, queue: queue, logger: logger}
}

// Record publishes ev as a persistent JSON message.  Errors are returned so
// the caller can count them; the publisher never panics.
func (p *Publisher) Record(ctx context.Context, ev Event) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("rabbitmq: marshal event: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    ch, err := p.channel()
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        MessageId:    ev.ID,
        Type:         ev.Name,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx,
        "",      // default exchange
        p.queue, // routing key = queue name
        false,   // mandatory
        false,   // immediate
        pub,
    ); err != nil {
        p.reset()
        return fmt.Errorf("rabbitmq: publish %s: %w", ev.Name, err)
    }
    return nil
}

// channel returns an open channel, dialling and declaring the queue when
// needed.  p.mu must be held.
func (p *Publisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    p.reset()
    conn, err := amqp.Dial(p.url)
    if err != nil {
        return nil, fmt.Errorf("rabbitmq: dial: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("rabbitmq: channel open: %w", err)
    }
    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, fmt.Errorf("rabbitmq: queue declare: %w", err)
    }
    p.conn, p.ch = conn, ch
    p.logger.Info("rabbitmq publisher connected", "queue", p.queue)
    return ch, nil
}

// reset drops the current connection.  p.mu must be held.
func (p *Publisher) reset() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.reset()
    return nil
}

// Sink is anything that accepts events.
type Sink interface {
    Record(ctx context.Context, ev Event) error
}

// Fanout hands each event to every sink and reports all failures.
type Fanout []Sink

// Record implements Sink.
func (f Fanout) Record(ctx context.Context, ev Event) error {
    var errs []error
    for _, s := range f {
        if err := s.Record(ctx, ev); err != nil {
            errs = append(errs, err)
        }
    }
    return errors.Join(errs...)
}

// LogRecorder writes events to a structured logger.  It is the audit sink
// when no broker is configured.
type LogRecorder struct {
    Logger *slog.Logger
}

// Record implements Sink.
func (l LogRecorder) Record(ctx context.Context, ev Event) error {
    logger := l.Logger
    if logger == nil {
        logger = slog.Default()
    }
    logger.InfoContext(ctx, "reservation event",
        "event", ev.Name,
        "event_id", ev.ID,
        "reservation_id", ev.ReservationID,
        "class_id", ev.ClassID,
        "customer_id", ev.CustomerID,
        "status", ev.Status,
    )
    return nil
}
