package policy

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGLoadAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"ptype", "v0", "v1", "v2", "v3", "v4", "v5"}).
		AddRow("p", "role:reader", "/api/*", "GET", "", "allow", "").
		AddRow("g", "alice", "role:reader", "", "", "", "")
	mock.ExpectQuery("select ptype, v0, v1, v2, v3, v4, v5 from casbin_rule").
		WillReturnRows(rows)

	store := NewPGStore(db)
	rules, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0] != P("role:reader", "/api/*", "GET", "", "allow") {
		t.Fatalf("unexpected p rule: %+v", rules[0])
	}
	if rules[1] != G("alice", "role:reader") {
		t.Fatalf("unexpected g rule: %+v", rules[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGAddRuleSuppressesDuplicates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	rule := P("alice", "/api/notes", "GET", "", "allow")
	mock.ExpectExec("insert into casbin_rule").
		WithArgs(rule.PType, rule.V0, rule.V1, rule.V2, rule.V3, rule.V4, rule.V5).
		WillReturnResult(sqlmock.NewResult(0, 0)) // conflict, nothing inserted

	store := NewPGStore(db)
	if err := store.AddRule(context.Background(), rule); err != nil {
		t.Fatalf("duplicate AddRule must not error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
