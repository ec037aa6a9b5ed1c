package scanrun

import (
	"context"

	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/pagination"
)

// Filter narrows run listings.
type Filter struct {
	ProjectID *shared.ID
	Kinds     []Kind
	Statuses  []Status
}

// Repository persists scan runs.
type Repository interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id shared.ID) (*Run, error)
	Update(ctx context.Context, run *Run) error
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Run], error)
}
