package policy

import (
	"context"
	"database/sql"
)

var _ Store = (*PGStore)(nil)

// PGStore implements [Store] on PostgreSQL in the conventional casbin_rule
// layout, so an existing rule table migrates without rewriting.
//
// Schema:
//
//	create table casbin_rule (
//	    id    bigserial primary key,
//	    ptype text not null,
//	    v0    text not null default '',
//	    v1    text not null default '',
//	    v2    text not null default '',
//	    v3    text not null default '',
//	    v4    text not null default '',
//	    v5    text not null default '',
//	    unique (ptype, v0, v1, v2, v3, v4, v5)
//	);
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a Postgres-backed policy store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) LoadAll(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`select ptype, v0, v1, v2, v3, v4, v5 from casbin_rule order by id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.PType, &r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *PGStore) AddRule(ctx context.Context, r Rule) error {
	_, err := s.db.ExecContext(ctx,
		`insert into casbin_rule(ptype, v0, v1, v2, v3, v4, v5)
		 values($1,$2,$3,$4,$5,$6,$7)
		 on conflict do nothing`,
		r.PType, r.V0, r.V1, r.V2, r.V3, r.V4, r.V5)
	return err
}

func (s *PGStore) RemoveRule(ctx context.Context, r Rule) error {
	_, err := s.db.ExecContext(ctx,
		`delete from casbin_rule
		 where ptype = $1 and v0 = $2 and v1 = $3 and v2 = $4 and v3 = $5 and v4 = $6 and v5 = $7`,
		r.PType, r.V0, r.V1, r.V2, r.V3, r.V4, r.V5)
	return err
}
