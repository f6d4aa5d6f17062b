package keys

import (
	"context"
	"database/sql"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements [Store] on PostgreSQL.
//
// Schema:
//
//	create table signing_keys (
//	    kid        bigserial primary key,
//	    material   bytea not null,
//	    created_at timestamptz not null
//	);
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a Postgres-backed signing key store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, material []byte, createdAt time.Time) (SigningKey, error) {
	row := s.db.QueryRowContext(ctx,
		`insert into signing_keys(material, created_at) values($1,$2) returning kid`,
		material, createdAt,
	)
	key := SigningKey{Material: material, CreatedAt: createdAt}
	if err := row.Scan(&key.Kid); err != nil {
		return SigningKey{}, err
	}
	return key, nil
}

func (s *PGStore) LoadAll(ctx context.Context) ([]SigningKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`select kid, material, created_at from signing_keys order by created_at asc, kid asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []SigningKey
	for rows.Next() {
		var k SigningKey
		if err := rows.Scan(&k.Kid, &k.Material, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PGStore) DeleteOldest(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`delete from signing_keys where kid in (
		    select kid from signing_keys order by created_at asc, kid asc limit $1
		)`, n)
	return err
}
