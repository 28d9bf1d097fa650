package maintenance

import (
	"context"
	"strconv"
	"time"

	"todoapp/internal/storage"
)

const (
	JobPurgeCodes   = "codes.purge"
	JobCompactStore = "store.compact"
)

// PurgeCodes deletes verification codes that expired before now().
func PurgeCodes(codes storage.CodeRepo, now func() time.Time) JobFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) (string, error) {
		n, err := codes.PurgeExpiredCodes(ctx, now())
		if err != nil {
			return "", err
		}
		return "purged=" + strconv.Itoa(n), nil
	}
}

// CompactStore rewrites the store snapshot (file driver).
func CompactStore(c storage.Compactor) JobFunc {
	return func(ctx context.Context) (string, error) {
		if err := c.Compact(ctx); err != nil {
			return "", err
		}
		return "compacted", nil
	}
}
