package token

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func TestPGGetAccessTokenNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select jti, subject, device_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetAccessToken(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGSaveAccessTokenRevokesSiblingsInOneTx(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("update access_tokens set revoked").
		WithArgs("alice", "device-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into access_tokens").
		WithArgs("j1", "alice", "device-1", now, now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SaveAccessToken(context.Background(), AccessTokenRecord{
		JTI: "j1", Subject: "alice", DeviceID: "device-1",
		IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SaveAccessToken failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGRotateRefreshTokenRejectsConsumedToken(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked").
		WithArgs("old-jti", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.RotateRefreshToken(context.Background(), "old-jti", now,
		RefreshTokenRecord{JTI: "new-r"}, AccessTokenRecord{JTI: "new-a"})
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGRotateRefreshTokenHappyPath(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	exp := now.Add(time.Hour)

	refresh := RefreshTokenRecord{
		JTI: "new-r", TokenHash: "hash", Subject: "alice", DeviceID: "d1",
		IssuedAt: now, ExpiresAt: exp,
	}
	access := AccessTokenRecord{
		JTI: "new-a", Subject: "alice", DeviceID: "d1",
		IssuedAt: now, ExpiresAt: exp,
	}

	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked").
		WithArgs("old-jti", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update refresh_tokens set revoked").
		WithArgs("alice", "d1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs("new-r", "hash", "alice", "d1", now, exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update access_tokens set revoked").
		WithArgs("alice", "d1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into access_tokens").
		WithArgs("new-a", "alice", "d1", now, exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.RotateRefreshToken(context.Background(), "old-jti", now, refresh, access); err != nil {
		t.Fatalf("RotateRefreshToken failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGRevokeRefreshTokenNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec("update refresh_tokens set revoked").
		WithArgs("missing", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.RevokeRefreshToken(context.Background(), "missing", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGDeleteExpiredSumsBothTables(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("delete from access_tokens").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("delete from refresh_tokens").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := store.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 deleted rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
