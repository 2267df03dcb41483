package postgres

import (
	"strings"
	"testing"

	"behavioretl/internal/schema"
	"behavioretl/internal/storage"
)

func TestDialectQuoting(t *testing.T) {
	t.Parallel()

	d := Dialect{}
	if got := d.Quote(`we"ird`); got != `"we""ird"` {
		t.Errorf("Quote = %s", got)
	}
	if got := d.QuoteTable("public.usb1"); got != `"public"."usb1"` {
		t.Errorf("QuoteTable = %s", got)
	}
	if got := d.Rename("public.usb1__next_ab", "usb1"); got != `ALTER TABLE "public"."usb1__next_ab" RENAME TO "usb1"` {
		t.Errorf("Rename = %s", got)
	}
	if got := d.CreateTableAs("by_city", "SELECT 1"); got != `CREATE TABLE "by_city" AS SELECT 1` {
		t.Errorf("CreateTableAs = %s", got)
	}
	if d.Placeholder(2) != "$2" {
		t.Errorf("Placeholder = %s", d.Placeholder(2))
	}
}

func TestDialectDDL(t *testing.T) {
	t.Parallel()

	d := Dialect{}
	v, err := schema.Lookup("basic")
	if err != nil {
		t.Fatal(err)
	}
	sql, err := d.CreateTable(storage.DestinationDef(d, "public.usb1", v))
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for _, want := range []string{
		`CREATE TABLE "public"."usb1"`,
		`"id" SERIAL NOT NULL`,
		`"user_id" BIGINT,`,
		`"event_time" TIMESTAMPTZ`,
		`PRIMARY KEY ("id")`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("DDL missing %q:\n%s", want, sql)
		}
	}

	tmp, err := d.CreateTemp(storage.DestinationDef(d, "stg_x", v))
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if !strings.HasPrefix(tmp, `CREATE TEMPORARY TABLE "stg_x"`) || !strings.HasSuffix(tmp, "ON COMMIT DROP") {
		t.Errorf("CreateTemp = %s", tmp)
	}
}

func TestLockKeyStable(t *testing.T) {
	t.Parallel()

	if LockKey("usb1") != LockKey("USB1") {
		t.Fatal("lock key should ignore case")
	}
	if LockKey("usb1") == LockKey("usb3") {
		t.Fatal("distinct tables should not share a lock key")
	}
	q, args := Dialect{}.Lock("usb1")
	if q != "SELECT pg_advisory_xact_lock($1)" || len(args) != 1 {
		t.Fatalf("Lock = %q %v", q, args)
	}
	if _, err := storage.DialectFor("postgres"); err != nil {
		t.Fatalf("dialect not registered: %v", err)
	}
}
