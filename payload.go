package filescan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gobeaver/filescan/codec"
)

// PayloadStore parks child content too large to travel inline in a work
// item. Object-storage drivers implement it.
type PayloadStore interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns ErrPayloadNotFound when key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// PayloadSweeper is implemented by payload stores that can drop every
// payload parked for a submission in one call.
type PayloadSweeper interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// claimer moves node content in and out of a PayloadStore.
type claimer struct {
	store       PayloadStore
	threshold   int64
	compression codec.Compression
}

// wants reports whether data should be parked instead of sent inline.
func (c *claimer) wants(data []byte) bool {
	return c != nil && c.store != nil && int64(len(data)) > c.threshold
}

// park writes data under a key scoped to the submission and returns the claim.
func (c *claimer) park(ctx context.Context, submissionID string, id NodeID, data []byte, expireAt time.Time) (*Claim, error) {
	packed, err := codec.Compress(c.compression, data)
	if err != nil {
		return nil, err
	}
	key := submissionID + "/" + string(id)
	if err := c.store.Put(ctx, key, packed); err != nil {
		return nil, &StoreError{Op: "put payload", Key: key, Err: err}
	}
	return &Claim{
		Key:          key,
		OriginalSize: int64(len(data)),
		Compression:  string(c.compression),
		Checksum:     Fingerprint(data),
		ExpiresAt:    expireAt,
	}, nil
}

// resolve fetches, decompresses and verifies claimed content, then removes
// it from the store.
func (c *claimer) resolve(ctx context.Context, claim *Claim) ([]byte, error) {
	if c == nil || c.store == nil {
		return nil, fmt.Errorf("%w: no payload store configured for claim %s", ErrNotSupported, claim.Key)
	}
	packed, err := c.store.Get(ctx, claim.Key)
	if err != nil {
		return nil, &StoreError{Op: "get payload", Key: claim.Key, Err: err}
	}
	data, err := codec.Decompress(codec.Compression(claim.Compression), packed, claim.OriginalSize)
	if err != nil {
		return nil, err
	}
	if claim.Checksum != "" && Fingerprint(data) != claim.Checksum {
		return nil, fmt.Errorf("%w: %s", ErrPayloadCorrupt, claim.Key)
	}
	_ = c.store.Delete(ctx, claim.Key)
	return data, nil
}

// sweep drops payloads still parked for a submission, if the store can.
func (c *claimer) sweep(ctx context.Context, submissionID string) error {
	if c == nil || c.store == nil {
		return nil
	}
	sw, ok := c.store.(PayloadSweeper)
	if !ok {
		return nil
	}
	if err := sw.DeletePrefix(ctx, submissionID); err != nil && !errors.Is(err, ErrNotSupported) {
		return err
	}
	return nil
}
