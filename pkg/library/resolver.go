package library

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/sd-io/sdcore/pkg/syncengine"
)

// modelTables maps the model types this library exposes for foreign-key
// resolution to the sqlite table backing them (see pkg/db's migrations).
// Models absent from this table (e.g. syncengine.ModelAlbum, which has no
// backing table yet) cannot be used as a ForeignKeyMapping target.
var modelTables = map[syncengine.ModelType]string{
	syncengine.ModelEntry:    "entries",
	syncengine.ModelLocation: "locations",
	syncengine.ModelTag:      "tags",
}

// sqlFKResolver implements syncengine.FKResolver against a library's sqlite
// database, resolving between a row's local integer id and its UUID column,
// generalizing the single-table lookup pattern pkg/index/dbindex already
// uses for entries.
type sqlFKResolver struct {
	db *sql.DB
}

func newSQLFKResolver(db *sql.DB) *sqlFKResolver {
	return &sqlFKResolver{db: db}
}

func (r *sqlFKResolver) table(model syncengine.ModelType) (string, error) {
	table, ok := modelTables[model]
	if !ok {
		return "", fmt.Errorf("library: no foreign-key table registered for model %q", model)
	}
	return table, nil
}

func (r *sqlFKResolver) UUIDForID(ctx context.Context, model syncengine.ModelType, id int64) (string, error) {
	table, err := r.table(model)
	if err != nil {
		return "", err
	}
	var result string
	query := fmt.Sprintf("SELECT uuid FROM %s WHERE id = ?", table)
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&result); err != nil {
		return "", errors.Wrapf(err, "library: resolving %s id %d to uuid", model, id)
	}
	return result, nil
}

func (r *sqlFKResolver) IDForUUID(ctx context.Context, model syncengine.ModelType, uuid string) (int64, error) {
	table, err := r.table(model)
	if err != nil {
		return 0, err
	}
	var result int64
	query := fmt.Sprintf("SELECT id FROM %s WHERE uuid = ?", table)
	if err := r.db.QueryRowContext(ctx, query, uuid).Scan(&result); err != nil {
		return 0, errors.Wrapf(err, "library: resolving %s uuid %s to id", model, uuid)
	}
	return result, nil
}
