package devkit

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-dispatch/core"
)

func TestFakeTransportAdapter_ScriptsPlayInOrder(t *testing.T) {
	wantErr := errors.New("connection reset")
	adapter := NewFakeTransportAdapter("REST",
		TransportScript{Response: core.TransportResponse{StatusCode: 201, Body: []byte(`{"id":"run_1"}`)}},
		TransportScript{Err: wantErr},
		TransportScript{Response: core.TransportResponse{StatusCode: 200, Body: []byte(`{"status":"succeeded"}`)}},
	)

	if adapter.Kind() != "rest" {
		t.Fatalf("expected normalized kind, got %q", adapter.Kind())
	}

	first, err := adapter.Do(context.Background(), core.TransportRequest{URL: "https://example.com/tasks"})
	if err != nil || first.StatusCode != 201 {
		t.Fatalf("unexpected first exchange: %d %v", first.StatusCode, err)
	}
	if _, err := adapter.Do(context.Background(), core.TransportRequest{}); !errors.Is(err, wantErr) {
		t.Fatalf("expected scripted error, got %v", err)
	}

	// The last script repeats once the sequence runs out.
	for i := 0; i < 3; i++ {
		response, err := adapter.Do(context.Background(), core.TransportRequest{})
		if err != nil || response.StatusCode != 200 {
			t.Fatalf("exchange %d: %d %v", i, response.StatusCode, err)
		}
	}

	if got := len(adapter.Requests()); got != 5 {
		t.Fatalf("expected five recorded requests, got %d", got)
	}
}

func TestFakeTransportAdapter_RecordsClonedRequests(t *testing.T) {
	adapter := NewFakeTransportAdapter("rest")
	headers := map[string]string{"Authorization": "Bearer env-key"}
	if _, err := adapter.Do(context.Background(), core.TransportRequest{URL: "https://example.com", Headers: headers}); err != nil {
		t.Fatalf("do: %v", err)
	}

	headers["Authorization"] = "Bearer mutated"
	recorded := adapter.Requests()
	if recorded[0].Headers["Authorization"] != "Bearer env-key" {
		t.Fatalf("expected recorded request isolated from caller mutation, got %q", recorded[0].Headers["Authorization"])
	}
}
