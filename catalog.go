package vetflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/vetflow/cache"
	"github.com/blnkfinance/vetflow/model"
)

const catalogCacheKey = "vetflow:catalog"

// loadCatalog returns the backend catalog, shared between sessions through the cache.
// Any failure falls back to the default catalog and is only logged.
func (v *Vetflow) loadCatalog(ctx context.Context) model.Catalog {
	ctx, span := otel.Tracer("Vetflow").Start(ctx, "Load service catalog")
	defer span.End()

	var raw []byte
	err := v.cache.Get(ctx, catalogCacheKey, &raw)
	if err == nil {
		var catalog model.Catalog
		if err := json.Unmarshal(raw, &catalog); err == nil && len(catalog) > 0 {
			return catalog
		}
		logrus.Warn("ignoring unreadable cached catalog")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		logrus.WithError(err).Warn("catalog cache unavailable")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	catalog, err := v.backend.FetchServices(fetchCtx)
	if err != nil {
		span.RecordError(err)
		logrus.WithError(err).Warn("service catalog fetch failed, using default catalog")
		return model.DefaultCatalog()
	}

	raw, err = json.Marshal(catalog)
	if err == nil {
		ttl := time.Duration(v.cfg.Backend.CatalogCacheTTL) * time.Second
		if err := v.cache.Set(ctx, catalogCacheKey, raw, ttl); err != nil {
			logrus.WithError(err).Warn("failed to cache service catalog")
		}
	}
	return catalog
}

// Catalog returns the catalog the session was started with.
func (v *Vetflow) Catalog(ctx context.Context, sessionID string) (model.Catalog, error) {
	s, err := v.StartSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sessionCatalog(s), nil
}

func sessionCatalog(s *model.Session) model.Catalog {
	if len(s.Catalog) == 0 {
		return model.DefaultCatalog()
	}
	return s.Catalog
}
