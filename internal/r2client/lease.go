package r2client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// LeaseRecord is the content of a lease object.
type LeaseRecord struct {
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Lease is a time-bounded exclusive claim on a key, built on conditional
// writes. It keeps several instances sharing one bucket from uploading
// snapshots at the same time.
type Lease struct {
	store  Store
	key    string
	ttl    time.Duration
	holder string
	etag   string
	now    func() time.Time
}

// NewLease creates a lease on key held for ttl once acquired.
func NewLease(store Store, key string, ttl time.Duration) *Lease {
	return &Lease{store: store, key: key, ttl: ttl, holder: uuid.NewString(), now: time.Now}
}

// Holder identifies this lease instance.
func (l *Lease) Holder() string { return l.holder }

// Acquire claims the lease. It reports false while another holder's claim
// has not expired. An expired claim is taken over with a conditional write.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	body, err := l.record()
	if err != nil {
		return false, err
	}
	created, etag, err := l.store.PutIfAbsent(ctx, l.key, bytes.NewReader(body), "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if created {
		l.etag = etag
		return true, nil
	}

	current, currentETag, err := l.read(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		return l.Acquire(ctx)
	case err != nil:
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	case current != nil && l.now().Before(current.ExpiresAt):
		return false, nil
	}

	taken, etag, err := l.store.PutIfMatch(ctx, l.key, bytes.NewReader(body), currentETag, "application/json")
	if err != nil {
		return false, fmt.Errorf("take over lease %s: %w", l.key, err)
	}
	if taken {
		l.etag = etag
	}
	return taken, nil
}

// Release gives the lease up if this instance still holds it.
func (l *Lease) Release(ctx context.Context) error {
	if l.etag == "" {
		return nil
	}
	defer func() { l.etag = "" }()

	current, _, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	if current != nil && current.Holder != l.holder {
		return nil
	}
	return l.store.Delete(ctx, l.key)
}

func (l *Lease) record() ([]byte, error) {
	b, err := json.Marshal(LeaseRecord{Holder: l.holder, ExpiresAt: l.now().Add(l.ttl)})
	if err != nil {
		return nil, fmt.Errorf("encode lease: %w", err)
	}
	return b, nil
}

// read returns the stored record, or nil for an unreadable record, which
// counts as expired.
func (l *Lease) read(ctx context.Context) (*LeaseRecord, string, error) {
	body, etag, err := l.store.Download(ctx, l.key)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return nil, "", fmt.Errorf("read lease: %w", err)
	}
	var rec LeaseRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, etag, nil
	}
	return &rec, etag, nil
}
