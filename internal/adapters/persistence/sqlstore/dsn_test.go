package sqlstore

import "testing"

func TestSQLiteDSN(t *testing.T) {
	cases := map[string]string{
		"/data/crosscam.db":  "/data/crosscam.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		"file:x.db?mode=rwc": "file:x.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
	}
	for in, want := range cases {
		if got := sqliteDSN(in); got != want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLikePattern(t *testing.T) {
	cases := map[string]string{
		"Red":     "%red%",
		" navy ":  "%navy%",
		"100%":    `%100\%%`,
		"a_b":     `%a\_b%`,
		`back\sl`: `%back\\sl%`,
	}
	for in, want := range cases {
		if got := likePattern(in); got != want {
			t.Errorf("likePattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDialect(t *testing.T) {
	if !DialectSQLite.Valid() || !DialectPostgres.Valid() || Dialect("mysql").Valid() {
		t.Fatal("unexpected dialect validity")
	}
	if DialectSQLite.gooseDialect() != "sqlite3" || DialectPostgres.gooseDialect() != "postgres" {
		t.Fatal("unexpected goose dialect mapping")
	}
}
