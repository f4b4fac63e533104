package statsd

import (
	"net"
	"strings"
	"testing"
)

func TestTrimPrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  paymaster.app  ": "paymaster.app",
		"..foo..":           "foo",
		".":                 "",
		"":                  "",
	}

	for input, want := range tests {
		if got := trimPrefix(input); got != want {
			t.Fatalf("trimPrefix(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCleanMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" task/metric ": "task_metric",
		"foo..bar":      "foo.bar",
		"multi  space":  "multi__space",
		"slash/name/id": "slash_name_id",
	}

	for input, want := range tests {
		if got := cleanMetricName(input); got != want {
			t.Fatalf("cleanMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestEncodeTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		// Padded key/value to ensure trimming logic works.
		" service ": " payroll ",
	}
	local := map[string]string{
		"result": " success ",
		"":       "ignored",
		"env":    "stage",
	}

	got := encodeTags(global, local)
	want := "|#env:stage,result:success,service:payroll"

	if got != want {
		t.Fatalf("encodeTags mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestEncodeTagsEmpty(t *testing.T) {
	t.Parallel()

	if got := encodeTags(nil, nil); got != "" {
		t.Fatalf("encodeTags(nil, nil) = %q, want empty string", got)
	}
}

func TestCopyTagsReturnsCopy(t *testing.T) {
	t.Parallel()

	original := map[string]string{
		"env": "prod",
		"":    "ignored",
	}

	copied := copyTags(original)
	if copied == nil {
		t.Fatal("copyTags returned nil map")
	}

	copied["env"] = "stage"
	if original["env"] != "prod" {
		t.Fatal("copyTags did not copy values")
	}

	if _, ok := copied[""]; ok {
		t.Fatal("copyTags kept empty key")
	}
}

func TestLineAssembly(t *testing.T) {
	t.Parallel()

	client := &Client{
		prefix:     "paymaster",
		globalTags: map[string]string{"env": "test"},
	}

	got := client.line("task.transition", "1|c", map[string]string{"queue": "payroll"})
	want := "paymaster.task.transition:1|c|#env:test,queue:payroll"
	if got != want {
		t.Fatalf("line mismatch\n got: %q\nwant: %q", got, want)
	}

	if got := client.line("", "1|c", nil); got != "" {
		t.Fatalf("expected empty line for empty name, got %q", got)
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

	// Verify Close can be called again without error.
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
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
