package ratelimit

import (
	"testing"
	"time"
)

func TestAcquireRequest_TokenBucketRefills(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Now()

	for i := 0; i < 2; i++ {
		d := l.AcquireRequest("s1", now)
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		d.Permit.Release()
	}

	denied := l.AcquireRequest("s1", now)
	if denied.Allowed {
		t.Fatalf("burst exhausted, should be denied")
	}
	if denied.RetryAfter < 1 {
		t.Fatalf("RetryAfter = %d, want >= 1", denied.RetryAfter)
	}

	later := l.AcquireRequest("s1", now.Add(1500*time.Millisecond))
	if !later.Allowed {
		t.Fatalf("should be allowed after refill")
	}
	later.Permit.Release()
}

func TestAcquireRequest_PerPrincipalIsolation(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1})
	now := time.Now()

	d1 := l.AcquireRequest("s1", now)
	if !d1.Allowed {
		t.Fatalf("s1 should be allowed")
	}
	d1.Permit.Release()

	if d := l.AcquireRequest("s1", now); d.Allowed {
		t.Fatalf("s1 should be throttled")
	}
	if d := l.AcquireRequest("s2", now); !d.Allowed {
		t.Fatalf("s2 has its own bucket")
	}
}

func TestAcquireRequest_EnforcesConcurrency(t *testing.T) {
	l := New(Config{MaxConcurrentRequests: 1})
	now := time.Now()

	first := l.AcquireRequest("s1", now)
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}

	second := l.AcquireRequest("s1", now)
	if second.Allowed {
		t.Fatalf("second should be denied")
	}

	first.Permit.Release()
	third := l.AcquireRequest("s1", now)
	if !third.Allowed {
		t.Fatalf("third should be allowed after release")
	}
}

func TestAcquireStream_EnforcesConcurrency(t *testing.T) {
	l := New(Config{MaxConcurrentStreams: 1})
	now := time.Now()

	first := l.AcquireStream("s1", now)
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}

	second := l.AcquireStream("s1", now)
	if second.Allowed {
		t.Fatalf("second should be denied")
	}

	first.Permit.Release()
	third := l.AcquireStream("s1", now)
	if !third.Allowed {
		t.Fatalf("third should be allowed after release")
	}
}

func TestPermit_ReleaseIsIdempotent(t *testing.T) {
	l := New(Config{MaxConcurrentRequests: 1})
	now := time.Now()

	d := l.AcquireRequest("s1", now)
	d.Permit.Release()
	d.Permit.Release() // must not free a second slot

	a := l.AcquireRequest("s1", now)
	if !a.Allowed {
		t.Fatalf("slot should be free")
	}
	b := l.AcquireRequest("s1", now)
	if b.Allowed {
		t.Fatalf("double release must not widen the cap")
	}
	a.Permit.Release()
}

func TestPrincipalKeyFromToken(t *testing.T) {
	k1 := PrincipalKeyFromToken("sess_abc")
	k2 := PrincipalKeyFromToken("sess_abc")
	k3 := PrincipalKeyFromToken("sess_def")

	if k1 != k2 {
		t.Fatalf("key must be stable: %q vs %q", k1, k2)
	}
	if k1 == k3 {
		t.Fatalf("distinct tokens must not collide")
	}
	if k1 == "sess_abc" {
		t.Fatalf("key must not expose the raw token")
	}
}
