package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer reads reservation events from the durable queue and appends one
// human-friendly line per event to <LogDir>/reservation.log.
type Consumer struct {
    URL    string
    Queue  string
    LogDir string
    Logger *slog.Logger
}

// Run connects to RabbitMQ, declares the queue and consumes messages until
// ctx is cancelled.  Lost connections are re-established with exponential
// backoff.  A message that cannot be handled is rejected without requeue
// so the consumer keeps running.
func (c *Consumer) Run(ctx context.Context) error {
    logger := c.logger()
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            logger.Warn("reservation-consumer: dial failed", "error", err, "retry_in", backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        logger.Warn("reservation-consumer: consume loop ended; reconnecting", "error", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    logger := c.logger()
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        logger.Warn("reservation-consumer: set QoS failed", "error", err)
    }
    if _, err := ch.QueueDeclare(c.queue(), true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, c.queue(), "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := c.handleMessage(d.Body); err != nil {
            logger.Error("reservation-consumer: handle message failed", "error", err, "message_id", d.MessageId)
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

func (c *Consumer) handleMessage(body []byte) error {
    var ev Event
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Name == "" || ev.ReservationID == 0 {
        return fmt.Errorf("incomplete event %q", ev.ID)
    }
    dir := c.LogDir
    if dir == "" {
        dir = "logs"
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(filepath.Join(dir, "reservation.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatLine renders ev as a single log line terminated by a newline.
func FormatLine(ev Event) string {
    line := fmt.Sprintf("[%s] %s | event_id=%s | reservation_id=%d | customer_id=%d | class_id=%d | status=%s",
        ev.OccurredAt.UTC().Format(time.RFC3339), ev.Name, ev.ID, ev.ReservationID, ev.CustomerID, ev.ClassID, ev.Status)
    if ev.WaitlistPosition != nil {
        line += fmt.Sprintf(" | position=%d", *ev.WaitlistPosition)
    }
    if ev.Units > 0 {
        line += fmt.Sprintf(" | units=%d", ev.Units)
    }
    if ev.Actor != "" {
        line += fmt.Sprintf(" | actor=%s", ev.Actor)
    }
    if ev.Reason != "" {
        line += fmt.Sprintf(" | reason=%q", ev.Reason)
    }
    return line + "\n"
}

func (c *Consumer) queue() string {
    if c.Queue == "" {
        return DefaultQueue
    }
    return c.Queue
}

func (c *Consumer) logger() *slog.Logger {
    if c.Logger == nil {
        return slog.Default()
    }
    return c.Logger
}

// sleep waits for d or until ctx is done; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
