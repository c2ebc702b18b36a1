package ratelimit

import (
	"net/http"
	"sync"
	"testing"
	"time"
)

// mockClock is a controllable clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGenerateCooldown(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{
		GenerateCooldown:   10 * time.Second,
		GenerateMaxPerHour: 100,
		Clock:              clock,
	})
	defer limiter.Close()

	ip := "203.0.113.7"

	if res := limiter.Allow(ActionGenerate, ip); !res.Allowed {
		t.Fatalf("first request blocked: %s", res.Reason)
	}

	clock.Advance(4 * time.Second)
	res := limiter.Check(ActionGenerate, ip)
	if res.Allowed {
		t.Fatal("request within cooldown allowed")
	}
	if res.Reason != "cooldown" {
		t.Errorf("Reason = %q, want cooldown", res.Reason)
	}
	if res.RetryAfter != 6*time.Second {
		t.Errorf("RetryAfter = %v, want 6s", res.RetryAfter)
	}

	clock.Advance(6 * time.Second)
	if res := limiter.Check(ActionGenerate, ip); !res.Allowed {
		t.Fatalf("request after cooldown blocked: %s", res.Reason)
	}
}

func TestGenerateHourlyLimit(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{
		GenerateCooldown:   time.Millisecond,
		GenerateMaxPerHour: 3,
		Clock:              clock,
	})
	defer limiter.Close()

	ip := "203.0.113.8"
	for i := 0; i < 3; i++ {
		if res := limiter.Allow(ActionGenerate, ip); !res.Allowed {
			t.Fatalf("request %d blocked: %s", i+1, res.Reason)
		}
		clock.Advance(time.Second)
	}

	res := limiter.Check(ActionGenerate, ip)
	if res.Allowed || res.Reason != "hourly_limit" {
		t.Fatalf("fourth request = %+v, want hourly_limit", res)
	}
	if want := time.Hour - 3*time.Second; res.RetryAfter != want {
		t.Errorf("RetryAfter = %v, want %v", res.RetryAfter, want)
	}

	clock.Advance(time.Hour)
	if res := limiter.Allow(ActionGenerate, ip); !res.Allowed {
		t.Fatalf("request after window blocked: %s", res.Reason)
	}
}

func TestCheckDoesNotRecord(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{GenerateCooldown: time.Minute, GenerateMaxPerHour: 1, Clock: clock})
	defer limiter.Close()

	for i := 0; i < 5; i++ {
		if res := limiter.Check(ActionGenerate, "198.51.100.1"); !res.Allowed {
			t.Fatalf("Check %d blocked without any Record", i)
		}
	}
}

func TestAllowConcurrentBurst(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   int
	}{
		{"cooldown", Config{GenerateCooldown: time.Hour, GenerateMaxPerHour: 100}, 1},
		{"hourly limit", Config{GenerateMaxPerHour: 5}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			cfg.Clock = newMockClock()
			limiter := New(&cfg)
			defer limiter.Close()

			const burst = 64
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				allowed int
			)
			start := make(chan struct{})
			for i := 0; i < burst; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					if limiter.Allow(ActionGenerate, "203.0.113.7").Allowed {
						mu.Lock()
						allowed++
						mu.Unlock()
					}
				}()
			}
			close(start)
			wg.Wait()

			if allowed != tt.want {
				t.Fatalf("allowed = %d of %d, want %d", allowed, burst, tt.want)
			}
		})
	}
}

func TestActionsAndIPsAreIndependent(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{
		GenerateCooldown:   time.Minute,
		GenerateMaxPerHour: 1,
		SaveMaxPerHour:     1,
		Clock:              clock,
	})
	defer limiter.Close()

	limiter.Record(ActionGenerate, "198.51.100.1")

	if res := limiter.Check(ActionGenerate, "198.51.100.2"); !res.Allowed {
		t.Error("other IP blocked")
	}
	if res := limiter.Check(ActionSave, "198.51.100.1"); !res.Allowed {
		t.Error("save blocked by generate history")
	}
	if res := limiter.Check(ActionGenerate, "198.51.100.1"); res.Allowed {
		t.Error("generate allowed during cooldown")
	}
}

func TestSaveHasNoCooldown(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{SaveMaxPerHour: 2, Clock: clock})
	defer limiter.Close()

	ip := "198.51.100.9"
	limiter.Record(ActionSave, ip)
	if res := limiter.Check(ActionSave, ip); !res.Allowed {
		t.Fatalf("second save blocked: %s", res.Reason)
	}
	limiter.Record(ActionSave, ip)
	if res := limiter.Check(ActionSave, ip); res.Allowed || res.Reason != "hourly_limit" {
		t.Fatalf("third save = %+v, want hourly_limit", res)
	}
}

func TestCleanupDropsStaleWindows(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{GenerateMaxPerHour: 5, Clock: clock})
	defer limiter.Close()

	limiter.Record(ActionGenerate, "198.51.100.1")
	clock.Advance(30 * time.Minute)
	limiter.Record(ActionGenerate, "198.51.100.2")
	clock.Advance(45 * time.Minute)

	limiter.cleanup()
	if got := limiter.size(); got != 1 {
		t.Fatalf("size() = %d, want 1", got)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustProxy bool
		expected   string
	}{
		{
			name:       "trusted proxy, rightmost public XFF",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "203.0.113.50",
		},
		{
			name:       "trusted proxy, all private XFF",
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "10.0.0.1",
		},
		{
			name:       "trusted proxy, mapped private address skipped",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, ::ffff:192.168.1.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "203.0.113.9",
		},
		{
			name:       "trusted proxy, X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.51"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "203.0.113.51",
		},
		{
			name:       "untrusted, ignores XFF",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50"},
			remoteAddr: "192.168.1.100:54321",
			expected:   "192.168.1.100",
		},
		{
			name:       "untrusted, ignores X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.51"},
			remoteAddr: "192.168.1.100:54321",
			expected:   "192.168.1.100",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "192.168.1.100",
			expected:   "192.168.1.100",
		},
		{
			name:       "IPv6 RemoteAddr",
			remoteAddr: "[2001:db8::1]:443",
			expected:   "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest("POST", "/api/generate-pattern", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r, tt.trustProxy); got != tt.expected {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}
