package database

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatementsCoverEveryTable(t *testing.T) {
	stmts := Statements()
	if len(stmts) != 4 {
		t.Fatalf("got %d statements", len(stmts))
	}
	for i, table := range []string{"seats", "reservations", "payments", "balances"} {
		if !strings.HasPrefix(stmts[i], "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Fatalf("statement %d does not create %s", i, table)
		}
	}
}

func TestMigrateExecutesStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	for range Statements() {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
