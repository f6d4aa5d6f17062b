package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements [Store] on PostgreSQL.
//
// Schema:
//
//	create table access_tokens (
//	    jti        text primary key,
//	    subject    text not null,
//	    device_id  text not null default '',
//	    issued_at  timestamptz not null,
//	    expires_at timestamptz not null,
//	    revoked    boolean not null default false,
//	    revoked_at timestamptz
//	);
//	create index access_tokens_subject_device on access_tokens(subject, device_id) where not revoked;
//	create index access_tokens_expires on access_tokens(expires_at);
//
//	create table refresh_tokens (
//	    jti        text primary key,
//	    token_hash text not null,
//	    subject    text not null,
//	    device_id  text not null,
//	    issued_at  timestamptz not null,
//	    expires_at timestamptz not null,
//	    revoked    boolean not null default false,
//	    revoked_at timestamptz
//	);
//	create index refresh_tokens_subject_device on refresh_tokens(subject, device_id) where not revoked;
//	create index refresh_tokens_expires on refresh_tokens(expires_at);
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a Postgres-backed token store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAccess(ctx context.Context, ex execer, rec AccessTokenRecord) error {
	if _, err := ex.ExecContext(ctx,
		`update access_tokens set revoked = true, revoked_at = $3
		 where subject = $1 and device_id = $2 and not revoked`,
		rec.Subject, rec.DeviceID, rec.IssuedAt); err != nil {
		return err
	}
	_, err := ex.ExecContext(ctx,
		`insert into access_tokens(jti, subject, device_id, issued_at, expires_at)
		 values($1,$2,$3,$4,$5)`,
		rec.JTI, rec.Subject, rec.DeviceID, rec.IssuedAt, rec.ExpiresAt)
	return err
}

func insertRefresh(ctx context.Context, ex execer, rec RefreshTokenRecord) error {
	if _, err := ex.ExecContext(ctx,
		`update refresh_tokens set revoked = true, revoked_at = $3
		 where subject = $1 and device_id = $2 and not revoked`,
		rec.Subject, rec.DeviceID, rec.IssuedAt); err != nil {
		return err
	}
	_, err := ex.ExecContext(ctx,
		`insert into refresh_tokens(jti, token_hash, subject, device_id, issued_at, expires_at)
		 values($1,$2,$3,$4,$5,$6)`,
		rec.JTI, rec.TokenHash, rec.Subject, rec.DeviceID, rec.IssuedAt, rec.ExpiresAt)
	return err
}

func (s *PGStore) SaveAccessToken(ctx context.Context, rec AccessTokenRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertAccess(ctx, tx, rec)
	})
}

func (s *PGStore) GetAccessToken(ctx context.Context, jti string) (AccessTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select jti, subject, device_id, issued_at, expires_at, revoked, revoked_at
		 from access_tokens where jti = $1`, jti)

	var rec AccessTokenRecord
	var revokedAt sql.NullTime
	err := row.Scan(&rec.JTI, &rec.Subject, &rec.DeviceID, &rec.IssuedAt,
		&rec.ExpiresAt, &rec.Revoked, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AccessTokenRecord{}, ErrNotFound
	}
	if err != nil {
		return AccessTokenRecord{}, err
	}
	rec.RevokedAt = revokedAt.Time
	return rec, nil
}

func (s *PGStore) RevokeAccessToken(ctx context.Context, jti string, at time.Time) (AccessTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`update access_tokens
		 set revoked = true, revoked_at = coalesce(revoked_at, $2)
		 where jti = $1
		 returning jti, subject, device_id, issued_at, expires_at, revoked, revoked_at`,
		jti, at)

	var rec AccessTokenRecord
	var revokedAt sql.NullTime
	err := row.Scan(&rec.JTI, &rec.Subject, &rec.DeviceID, &rec.IssuedAt,
		&rec.ExpiresAt, &rec.Revoked, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AccessTokenRecord{}, ErrNotFound
	}
	if err != nil {
		return AccessTokenRecord{}, err
	}
	rec.RevokedAt = revokedAt.Time
	return rec, nil
}

func (s *PGStore) SaveRefreshToken(ctx context.Context, rec RefreshTokenRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertRefresh(ctx, tx, rec)
	})
}

func (s *PGStore) GetRefreshToken(ctx context.Context, jti string) (RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select jti, token_hash, subject, device_id, issued_at, expires_at, revoked, revoked_at
		 from refresh_tokens where jti = $1`, jti)

	var rec RefreshTokenRecord
	var revokedAt sql.NullTime
	err := row.Scan(&rec.JTI, &rec.TokenHash, &rec.Subject, &rec.DeviceID,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.Revoked, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RefreshTokenRecord{}, ErrNotFound
	}
	if err != nil {
		return RefreshTokenRecord{}, err
	}
	rec.RevokedAt = revokedAt.Time
	return rec, nil
}

func (s *PGStore) RevokeRefreshToken(ctx context.Context, jti string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true, revoked_at = coalesce(revoked_at, $2)
		 where jti = $1`, jti, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) RotateRefreshToken(ctx context.Context, oldJTI string, at time.Time, refresh RefreshTokenRecord, access AccessTokenRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		// Conditional revoke of the old token decides the race: of two
		// concurrent rotations, only one sees rows affected.
		res, err := tx.ExecContext(ctx,
			`update refresh_tokens set revoked = true, revoked_at = $2
			 where jti = $1 and not revoked and expires_at > $2`,
			oldJTI, at)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrTokenRevoked
		}

		if err := insertRefresh(ctx, tx, refresh); err != nil {
			return err
		}
		return insertAccess(ctx, tx, access)
	})
}

func (s *PGStore) RevokeAllForSubject(ctx context.Context, subject string, at time.Time) (int64, error) {
	var revoked int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`update access_tokens set revoked = true, revoked_at = $2
			 where subject = $1 and not revoked`, subject, at)
		if err != nil {
			return err
		}
		revoked, err = res.RowsAffected()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`update refresh_tokens set revoked = true, revoked_at = $2
			 where subject = $1 and not revoked`, subject, at)
		return err
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}

func (s *PGStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`delete from access_tokens where expires_at <= $1`, now)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		total += n

		res, err = tx.ExecContext(ctx,
			`delete from refresh_tokens where expires_at <= $1`, now)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *PGStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%v (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
