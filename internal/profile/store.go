package profile

import (
	"context"

	"custodia/pkg/domain"
)

// Store is the profile persistence boundary. Profile records are created by
// the external identity flow; this service only reads them and mutates the
// administrative fields.
type Store interface {
	Get(ctx context.Context, id domain.ActorID) (*ActorProfile, error)
	List(ctx context.Context) ([]*ActorProfile, error)
	Save(ctx context.Context, p *ActorProfile) error
}
