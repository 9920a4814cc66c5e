package table

import (
	"context"
	"fmt"

	"github.com/pitabwire/repairdesk/model"
)

// TargetKind identifies what a click landed on.
type TargetKind string

const (
	TargetRow    TargetKind = "row"
	TargetEdit   TargetKind = "edit"
	TargetDelete TargetKind = "delete"
	TargetCreate TargetKind = "create"
)

// Target is a click inside the table. RowID is ignored for TargetCreate.
type Target struct {
	Kind  TargetKind
	RowID string
}

// Dispatch delivers a click to exactly one handler. A click on a row's edit
// or delete button reaches only that button's handler, never RowClick.
// displayed holds the rows currently on screen; clicks on any other row are
// rejected. Handler errors are returned unchanged.
func (t *Table) Dispatch(ctx context.Context, displayed []model.Record, target Target) error {
	if target.Kind == TargetCreate {
		if t.handlers.Create == nil {
			return fmt.Errorf("%w: %s", ErrNoHandler, target.Kind)
		}
		return t.handlers.Create(ctx)
	}

	var h RowHandler
	switch target.Kind {
	case TargetRow:
		h = t.handlers.RowClick
	case TargetEdit:
		h = t.handlers.Edit
	case TargetDelete:
		h = t.handlers.Delete
	default:
		return fmt.Errorf("%w: %q", ErrNoHandler, target.Kind)
	}
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, target.Kind)
	}

	for _, row := range displayed {
		if row.ID(t.idField) == target.RowID {
			return h(ctx, row)
		}
	}
	return fmt.Errorf("%w: %q", ErrRowNotFound, target.RowID)
}
