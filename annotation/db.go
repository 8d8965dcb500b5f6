package annotation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lewtec/demarcador/internal/repository"
)

// GetDatabase opens the project database and brings its schema up to date
func GetDatabase(ctx context.Context, filename string) (*sql.DB, error) {
	db, err := repository.Open(filename)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("while migrating %s: %w", filename, err)
	}
	return db, nil
}
