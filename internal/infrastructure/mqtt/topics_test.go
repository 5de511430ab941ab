package mqtt

import (
	"testing"
	"time"
)

func TestTopics(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"device out", topics.DeviceOut("aabbccddeeff"), "/v1/dev/aabbccddeeff/out"},
		{"device in", topics.DeviceIn("aabbccddeeff"), "/v1/dev/aabbccddeeff/in"},
		{"device batch", topics.DeviceBatch("aabbccddeeff"), "/v1/dev/aabbccddeeff/batch"},
		{"account", topics.AccountOut("user-1"), "/v1/user/user-1/out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	if all := topics.Device("aa"); len(all) != 3 || all[2] != "/v1/dev/aa/batch" {
		t.Errorf("Device() = %v", all)
	}
}

func TestParseDeviceTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantMac  string
		wantKind string
		wantOK   bool
	}{
		{"/v1/dev/aabbccddeeff/out", "aabbccddeeff", KindOut, true},
		{"/v1/dev/aabbccddeeff/batch", "aabbccddeeff", KindBatch, true},
		{"/v1/dev/aabbccddeeff/in", "aabbccddeeff", KindIn, true},
		{"/v1/user/u1/out", "", "", false},
		{"/v1/dev//out", "", "", false},
		{"/v1/dev/aabb/out/extra", "", "", false},
		{"/v1/dev/aabb/status", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			mac, kind, ok := Topics{}.ParseDeviceTopic(tt.topic)
			if mac != tt.wantMac || kind != tt.wantKind || ok != tt.wantOK {
				t.Errorf("ParseDeviceTopic(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, mac, kind, ok, tt.wantMac, tt.wantKind, tt.wantOK)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := Config{Endpoint: "broker.test", KeepAlive: 30 * time.Second}
	cfg.applyDefaults()
	opts := buildClientOptions(cfg, &transport{})

	if opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if opts.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", opts.KeepAlive)
	}
	if opts.PingTimeout != defaultPingTimeout {
		t.Errorf("PingTimeout = %v, want %v", opts.PingTimeout, defaultPingTimeout)
	}
	if opts.CustomOpenConnectionFn == nil {
		t.Error("CustomOpenConnectionFn not set")
	}
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "broker.test" {
		t.Errorf("Servers = %v", opts.Servers)
	}
}
