package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Anthobetto/UNMI-sub001/internal/platform/config"
)

func TestWrapErrorClassifies(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "not found", err: status.Error(codes.NotFound, "missing"), want: KindNotFound},
		{name: "already exists", err: status.Error(codes.AlreadyExists, "dup"), want: KindConflict},
		{name: "aborted", err: status.Error(codes.Aborted, "contention"), want: KindConflict},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), want: KindUnavailable},
		{name: "plain error", err: errors.New("boom"), want: KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("messageTemplates.create", tc.err)
			var fsErr *Error
			if !errors.As(err, &fsErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if fsErr.Kind != tc.want {
				t.Fatalf("expected kind %v, got %v", tc.want, fsErr.Kind)
			}
			if !errors.Is(err, tc.err) {
				t.Fatal("wrapped error must unwrap to the original")
			}
			if fsErr.Error() != "messageTemplates.create: "+tc.err.Error() {
				t.Fatalf("unexpected message %q", fsErr.Error())
			}
		})
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("op", context.DeadlineExceeded); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline to pass through, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.Canceled, "gone")); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestWrapErrorKeepsExistingAnnotation(t *testing.T) {
	inner := WrapError("", status.Error(codes.NotFound, "missing"))
	outer := WrapError("outer", inner)
	var fsErr *Error
	if !errors.As(outer, &fsErr) || fsErr.Op != "outer" || !fsErr.IsNotFound() {
		t.Fatalf("expected re-annotated not found error, got %v", outer)
	}
}

func TestProviderClosedRejectsClient(t *testing.T) {
	p := NewProvider(testFirestoreConfig())
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}

func TestProviderDialTimeoutOption(t *testing.T) {
	if p := NewProvider(testFirestoreConfig()); p.dialTimeout != defaultDialTimeout {
		t.Fatalf("expected default dial timeout, got %s", p.dialTimeout)
	}
	if p := NewProvider(testFirestoreConfig(), WithDialTimeout(3*time.Second)); p.dialTimeout != 3*time.Second {
		t.Fatalf("expected configured dial timeout, got %s", p.dialTimeout)
	}
	if p := NewProvider(testFirestoreConfig(), WithDialTimeout(0)); p.dialTimeout != defaultDialTimeout {
		t.Fatalf("non-positive timeout must keep the default, got %s", p.dialTimeout)
	}
}

func TestNewCollectionValidates(t *testing.T) {
	if _, err := NewCollection[struct{}](nil, "x"); err == nil {
		t.Fatal("expected error without provider")
	}
	if _, err := NewCollection[struct{}](NewProvider(testFirestoreConfig()), " "); err == nil {
		t.Fatal("expected error without collection name")
	}
}

func testFirestoreConfig() config.FirestoreConfig {
	return config.FirestoreConfig{ProjectID: "test-project", EmulatorHost: "127.0.0.1:8787"}
}
