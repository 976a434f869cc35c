package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"custodia/internal/platform/config"
	"custodia/internal/platform/metrics"
	platformredis "custodia/internal/platform/redis"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

const snapshotCacheKey = "custodia:profiles:snapshot"

// Service reads and mutates actor profiles, applying the bootstrap
// super-administrator override and caching the whole-tree snapshot that
// hierarchy queries consume.
type Service struct {
	store     Store
	cache     *platformredis.Client // nil means no cache
	bootstrap domain.ActorID
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCache enables the Redis snapshot cache.
func WithCache(cache *platformredis.Client) Option {
	return func(s *Service) { s.cache = cache }
}

// WithBootstrapAdmin designates the reserved super-administrator identity.
// That actor always resolves to role=admin, access=approved regardless of
// the stored record. Not configurable at runtime.
func WithBootstrapAdmin(id domain.ActorID) Option {
	return func(s *Service) { s.bootstrap = id }
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	svc := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) applyOverride(p *ActorProfile) *ActorProfile {
	if !s.bootstrap.IsNil() && p.ID == s.bootstrap {
		p.Role = domain.RoleAdmin
		p.Access = domain.AccessApproved
	}
	return p
}

// GetProfile returns one actor's profile. The bootstrap administrator
// resolves to admin/approved even when the backing record disagrees or is
// absent entirely.
func (s *Service) GetProfile(ctx context.Context, id domain.ActorID) (*ActorProfile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			if !s.bootstrap.IsNil() && id == s.bootstrap {
				return &ActorProfile{
					ID:     id,
					Role:   domain.RoleAdmin,
					Access: domain.AccessApproved,
				}, nil
			}
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "profile not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "read profile")
	}
	return s.applyOverride(p), nil
}

// GetAllProfiles returns the whole profile snapshot, served from cache when
// fresh. Cache failures degrade to a store read; they never fail the query.
// The bootstrap administrator is always present in the snapshot, even when
// no backing record exists, so hierarchy queries never fail closed on the
// reserved identity.
func (s *Service) GetAllProfiles(ctx context.Context) ([]*ActorProfile, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, snapshotCacheKey).Bytes()
		if err == nil {
			var cached []*ActorProfile
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	profiles, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "list profiles")
	}
	bootstrapSeen := s.bootstrap.IsNil()
	for _, p := range profiles {
		s.applyOverride(p)
		if p.ID == s.bootstrap {
			bootstrapSeen = true
		}
	}
	if !bootstrapSeen {
		profiles = append(profiles, &ActorProfile{
			ID:     s.bootstrap,
			Role:   domain.RoleAdmin,
			Access: domain.AccessApproved,
		})
	}

	if s.cache != nil {
		if raw, err := json.Marshal(profiles); err == nil {
			if err := s.cache.Set(ctx, snapshotCacheKey, raw, config.ProfileCacheTTL).Err(); err != nil {
				s.logger.WarnContext(ctx, "profile snapshot cache write failed", "error", err)
			}
		}
	}
	return profiles, nil
}

// UpdateProfile mutates the administrative fields of a profile and drops
// the cached snapshot.
func (s *Service) UpdateProfile(ctx context.Context, id domain.ActorID, patch Patch) (*ActorProfile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "profile not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "read profile for update")
	}
	if patch.Role != nil {
		if !patch.Role.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid role %q", *patch.Role)
		}
		p.Role = *patch.Role
	}
	if patch.ManagerID != nil {
		p.ManagerID = patch.ManagerID
	}
	if patch.Access != nil {
		p.Access = *patch.Access
	}
	p.UpdatedAt = time.Now()

	if err := s.store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "save profile")
	}
	s.InvalidateSnapshot(ctx)
	return s.applyOverride(p), nil
}

// InvalidateSnapshot discards cached profile state. Called on profile
// mutation and on session termination so nothing stale crosses an identity
// change.
func (s *Service) InvalidateSnapshot(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, snapshotCacheKey).Err(); err != nil {
		s.logger.WarnContext(ctx, "profile snapshot invalidation failed", "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.SnapshotInvalidations.Inc()
	}
}
