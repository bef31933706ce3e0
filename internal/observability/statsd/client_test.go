package statsd

import (
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"
)

func TestSanitizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  opsdesk.batch  ": "opsdesk.batch",
		"..foo..":           "foo",
		".":                 "",
		"":                  "",
	}

	for input, want := range tests {
		if got := sanitizePrefix(input); got != want {
			t.Fatalf("sanitizePrefix(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" job/run ":         "job_run",
		"batch..duration":   "batch.duration",
		"multi  space":      "multi__space",
		"entity:user|scan":  "entity_user_scan",
		"jobs.run,finished": "jobs.run_finished",
	}

	for input, want := range tests {
		if got := normalizeMetricName(input); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		//nolint:gocritic // whitespace is part of the test case
		" service ": " opsdesk ",
	}
	local := map[string]string{
		"result": " success ",
		"":       "ignored",
		"env":    "stage",
		"job":    "dormant report,v2",
	}

	got := formatTags(global, local)
	want := "|#env:stage,job:dormant_report_v2,result:success,service:opsdesk"

	if got != want {
		t.Fatalf("formatTags mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatTagsEmpty(t *testing.T) {
	t.Parallel()

	if got := formatTags(nil, nil); got != "" {
		t.Fatalf("formatTags(nil, nil) = %q, want empty string", got)
	}
	if got := formatTags(map[string]string{" ": "x"}, nil); got != "" {
		t.Fatalf("formatTags with blank key = %q, want empty string", got)
	}
}

func TestCloneTagsReturnsCopy(t *testing.T) {
	t.Parallel()

	original := map[string]string{
		"env":      "prod",
		"":         "ignored",
		"team|ops": "sre",
	}

	cloned := cloneTags(original)
	cloned["env"] = "stage"
	if original["env"] != "prod" {
		t.Fatal("cloneTags did not copy values")
	}
	if _, ok := cloned[""]; ok {
		t.Fatal("cloneTags kept empty key")
	}
	if cloned["team_ops"] != "sre" {
		t.Fatalf("cloneTags did not normalise key: %v", cloned)
	}
}

func TestClientWritesLines(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     "opsdesk",
		GlobalTags: map[string]string{"env": "test"},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	client.Count("jobs.run", 1, map[string]string{"result": "success"})

	buf := make([]byte, 512)
	if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	want := "opsdesk.jobs.run:1|c|#env:test,result:success"
	if got := string(buf[:n]); got != want {
		t.Fatalf("line mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestClientCountsDroppedWrites(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	_ = peerConn.Close()
	_ = clientConn.Close()

	client := &Client{
		enabled: true,
		conn:    clientConn,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	client.Count("a", 1, nil)
	client.Gauge("b", 2.5, nil)
	client.Timing("c", time.Second, nil)

	if got := client.Dropped(); got != 3 {
		t.Fatalf("Dropped() = %d, want 3", got)
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{
		enabled: true,
		conn:    clientConn,
	}

	if !client.Enabled() {
		t.Fatal("expected client.Enabled to report true with active connection")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if nilClient.Dropped() != 0 {
		t.Fatal("nil client should report no drops")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		Enabled: true,
		Address: "   ",
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
	// Writes on a disabled client are no-ops.
	client.Count("jobs.run", 1, nil)
	if client.Dropped() != 0 {
		t.Fatal("disabled client should not count drops")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{
		Enabled: true,
		Address: "bad address",
	})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}
