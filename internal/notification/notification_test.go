package notification

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerNotifierWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := n.Send(context.Background(), Message{Kind: KindDeposit, Destination: "0xabc", Body: "Deposit of 500 NGN"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), `"kind":"deposit"`) {
		t.Fatalf("expected kind in log line, got %s", buf.String())
	}
}

func TestNilLoggerNotifierIsNoop(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_ = r.Send(context.Background(), Message{Kind: KindWithdrawal})
	_ = r.Send(context.Background(), Message{Kind: KindTransferReceived})
	if got := r.Messages(); len(got) != 2 || got[1].Kind != KindTransferReceived {
		t.Fatalf("unexpected messages %+v", got)
	}
}
