package amqp

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "connection error", err: errors.New("connection refused"), expected: true},
		{name: "closed connection error", err: errors.New("connection closed"), expected: true},
		{name: "EOF error", err: errors.New("unexpected EOF"), expected: true},
		{name: "broken pipe error", err: errors.New("broken pipe"), expected: true},
		{name: "closed network connection error", err: errors.New("use of closed network connection"), expected: true},
		{name: "amqp closed", err: amqp091.ErrClosed, expected: true},
		{name: "other error", err: errors.New("some other error"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "gastos", queueName: "transaction_events"}

	t.Run("initial state is closed", func(t *testing.T) {
		if client.isCircuitOpen() {
			t.Error("Circuit breaker should be closed initially")
		}
	})

	t.Run("record success resets state", func(t *testing.T) {
		atomic.StoreInt64(&client.failureCount, 3)
		atomic.StoreInt32(&client.state, StateOpen)

		client.recordSuccess()

		if client.isCircuitOpen() {
			t.Error("Circuit breaker should be closed after success")
		}
		if atomic.LoadInt64(&client.failureCount) != 0 {
			t.Error("Failure count should be reset to 0 after success")
		}
	})

	t.Run("multiple failures open circuit", func(t *testing.T) {
		for i := 0; i < maxFailures; i++ {
			client.recordFailure()
		}
		if !client.isCircuitOpen() {
			t.Error("Circuit breaker should be open after max failures")
		}
	})

	t.Run("circuit transitions to half-open after timeout", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now().Add(-openTimeout - time.Second)

		if client.isCircuitOpen() {
			t.Error("Circuit should transition to half-open after timeout")
		}
		if atomic.LoadInt32(&client.state) != StateHalfOpen {
			t.Error("State should be StateHalfOpen after timeout")
		}
	})

	t.Run("failure while half-open reopens", func(t *testing.T) {
		atomic.StoreInt64(&client.failureCount, 0)
		atomic.StoreInt32(&client.state, StateHalfOpen)
		client.recordFailure()
		if atomic.LoadInt32(&client.state) != StateOpen {
			t.Error("State should be StateOpen after a half-open failure")
		}
	})
}

func TestClient_PublishShortCircuits(t *testing.T) {
	client := &Client{exchangeName: "gastos", queueName: "transaction_events"}
	event := NewTransactionEvent("tx-1", OpCreated, "2025-08", "maria")

	t.Run("publish fails when circuit is open", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now()

		err := client.Publish(context.Background(), event)
		if !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("Publish error = %v, want ErrCircuitOpen", err)
		}
	})

	t.Run("publish respects context cancellation", func(t *testing.T) {
		client.recordSuccess()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := client.Publish(ctx, event); err != context.Canceled {
			t.Errorf("Publish should return context.Canceled, got: %v", err)
		}
	})
}

func TestTransactionEvent_JSON(t *testing.T) {
	msg := &TransactionEvent{
		ID:        "tx-1",
		Op:        OpUpdated,
		Month:     "2025-08",
		UserID:    "maria",
		Timestamp: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	if !strings.Contains(string(body), `"op":"updated"`) {
		t.Errorf("unexpected body %s", body)
	}

	parsed, err := TransactionEventFromJSON(body)
	if err != nil {
		t.Fatalf("TransactionEventFromJSON() error = %v", err)
	}
	if parsed.ID != msg.ID || parsed.Op != msg.Op || parsed.Month != msg.Month || !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("parsed = %+v, want %+v", parsed, msg)
	}
}

func TestTransactionEventFromJSON_Invalid(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"op":"created"}`,
		`{"id":"x","op":"renamed"}`,
	} {
		if _, err := TransactionEventFromJSON([]byte(body)); err == nil {
			t.Errorf("TransactionEventFromJSON(%s) should fail", body)
		}
	}
}

func TestNewTransactionEvent(t *testing.T) {
	msg := NewTransactionEvent("tx-9", OpDeleted, "2025-07", "")
	if msg.Timestamp.IsZero() || time.Since(msg.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}
	if msg.Op != OpDeleted {
		t.Errorf("Op = %v", msg.Op)
	}
}
