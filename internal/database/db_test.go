package database

import "testing"

func TestBuildDSN(t *testing.T) {
	got := buildDSN("anchor", "s3cret", "127.0.0.1", "3306", "anchors")
	want := "anchor:s3cret@tcp(127.0.0.1:3306)/anchors?charset=utf8mb4&parseTime=true&loc=UTC"
	if got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}

func TestBuildDSNEmptyPassword(t *testing.T) {
	got := buildDSN("anchor", "", "db", "3306", "anchors")
	want := "anchor@tcp(db:3306)/anchors?charset=utf8mb4&parseTime=true&loc=UTC"
	if got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}
