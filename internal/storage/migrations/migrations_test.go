package migrations

import (
	"testing"
)

func TestLoad_EmbeddedFilesSorted(t *testing.T) {
	for _, dir := range []string{"postgres", "clickhouse"} {
		fsys := PostgresFS
		if dir == "clickhouse" {
			fsys = ClickhouseFS
		}
		files, err := load(fsys, dir)
		if err != nil {
			t.Fatalf("load %s: %v", dir, err)
		}
		if len(files) == 0 {
			t.Fatalf("no %s migrations embedded", dir)
		}
		for i := 1; i < len(files); i++ {
			if files[i-1].Name >= files[i].Name {
				t.Errorf("%s migrations out of order: %s before %s", dir, files[i-1].Name, files[i].Name)
			}
		}
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"single", "CREATE TABLE a (x Int32);", 1, false},
		{"two with comments", "-- first\nCREATE TABLE a (x Int32);\n-- second\nCREATE TABLE b (y Int32);\n", 2, false},
		{"no trailing semicolon", "SELECT 1", 1, false},
		{"escaped quote", "SELECT 'it''s';", 1, false},
		{"semicolon in literal", "SELECT 'a;b';", 0, true},
		{"only comments", "-- nothing\n\n", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitStatements(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("got %d statements %q, want %d", len(got), got, tt.want)
			}
		})
	}
}

func TestClickhouseMigrationsSplit(t *testing.T) {
	files, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range files {
		if _, err := splitStatements(m.SQL); err != nil {
			t.Errorf("%s: %v", m.Name, err)
		}
	}
}
