package laboratory

import (
	"context"
	"errors"

	"github.com/ehr/loinc-coder/internal/domain/terminology"
	"github.com/ehr/loinc-coder/internal/platform/redisstore"
)

// RedisTier is a SharedTier backed by a redisstore.JSONStore.
type RedisTier struct {
	store *redisstore.JSONStore
}

func NewRedisTier(store *redisstore.JSONStore) *RedisTier {
	return &RedisTier{store: store}
}

func (t *RedisTier) Get(ctx context.Context, key string) ([]*terminology.LOINCCode, bool, error) {
	var codes []*terminology.LOINCCode
	err := t.store.Get(ctx, key, &codes)
	if errors.Is(err, redisstore.ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return codes, true, nil
}

func (t *RedisTier) Set(ctx context.Context, key string, codes []*terminology.LOINCCode) error {
	if codes == nil {
		codes = []*terminology.LOINCCode{}
	}
	return t.store.Set(ctx, key, codes)
}
