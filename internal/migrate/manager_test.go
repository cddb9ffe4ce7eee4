package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/rasyiqi-code/breaktool-sub003/db"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/0001_users.up.sql":   {Data: []byte("create table users (id text);")},
		"migrations/0001_users.down.sql": {Data: []byte("drop table users;")},
		"migrations/0002_tools.up.sql": {Data: []byte(`
-- tools and their verdicts; don't split here
create table tools (id text);
insert into tools (id) values ('a;b');
`)},
		"migrations/0002_tools.down.sql": {Data: []byte("drop table tools;")},
	}
}

func expectEnsureTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer sqlDB.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table tools").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into tools").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_tools.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mgr := NewManager(sqlDB, testFS(), nil)
	if err := mgr.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer sqlDB.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations order by applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql").AddRow("0002_tools.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table tools").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("delete from schema_migrations").WithArgs("0002_tools.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mgr := NewManager(sqlDB, testFS(), nil)
	if err := mgr.Down(context.Background()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownWithoutHistory(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer sqlDB.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations order by applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if err := NewManager(sqlDB, testFS(), nil).Down(context.Background()); err == nil {
		t.Fatal("expected error when nothing is applied")
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("create table a (x text default 'p;q');\n-- it's a comment; really\ninsert into a values ('z');\n  ")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
}

func TestEmbeddedMigrationsPair(t *testing.T) {
	ups, err := collectSQL(db.Migrations, ".up.sql")
	if err != nil {
		t.Fatalf("collect up: %v", err)
	}
	downs, err := collectSQL(db.Migrations, ".down.sql")
	if err != nil {
		t.Fatalf("collect down: %v", err)
	}
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Fatalf("expected paired migrations, got %d up and %d down", len(ups), len(downs))
	}
	seeds, err := collectSQL(db.Seeds, ".sql")
	if err != nil || len(seeds) == 0 {
		t.Fatalf("expected embedded seeds, got %d (%v)", len(seeds), err)
	}
}
