package query

import (
	"errors"
	"testing"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
)

func intPtr(i int) *int { return &i }

func TestSchema_Table(t *testing.T) {
	s, err := NewSchema("")
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	if got := s.Table("entries"); got != `"public"."entries"` {
		t.Errorf("Expected default schema, got %s", got)
	}

	s, err = NewSchema("catalog_2")
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	if got := s.Table("entries_persons"); got != `"catalog_2"."entries_persons"` {
		t.Errorf("Unexpected qualified name: %s", got)
	}
}

func TestNewSchema_Invalid(t *testing.T) {
	for _, name := range []string{"public; DROP", `a"b`, "1abc", "my-schema"} {
		_, err := NewSchema(name)
		if err == nil {
			t.Errorf("Expected error for schema %q", name)
			continue
		}
		if !catalog.IsValidation(err) {
			t.Errorf("Expected ValidationError for %q, got %T", name, err)
		}
	}
}

func TestBuildPage(t *testing.T) {
	page, err := BuildPage(nil, nil)
	if err != nil {
		t.Fatalf("BuildPage failed: %v", err)
	}
	if !page.IsZero() {
		t.Error("Expected zero page")
	}

	paramCounter := 1
	args := make([]interface{}, 0)
	if sql := page.ToSQL(&paramCounter, &args); sql != "" {
		t.Errorf("Expected empty page SQL, got: %s", sql)
	}

	page, err = BuildPage(intPtr(10), intPtr(20))
	if err != nil {
		t.Fatalf("BuildPage failed: %v", err)
	}

	paramCounter = 2
	sql := page.ToSQL(&paramCounter, &args)
	if sql != " LIMIT $2 OFFSET $3" {
		t.Errorf("Unexpected page SQL: %s", sql)
	}
	if len(args) != 2 || args[0] != 10 || args[1] != 20 {
		t.Errorf("Unexpected args: %v", args)
	}
}

func TestBuildPage_OffsetOnly(t *testing.T) {
	page, err := BuildPage(nil, intPtr(5))
	if err != nil {
		t.Fatalf("BuildPage failed: %v", err)
	}

	paramCounter := 1
	args := make([]interface{}, 0)
	if sql := page.ToSQL(&paramCounter, &args); sql != " OFFSET $1" {
		t.Errorf("Unexpected page SQL: %s", sql)
	}
}

func TestBuildPage_Negative(t *testing.T) {
	_, err := BuildPage(intPtr(-1), intPtr(-5))
	if err == nil {
		t.Fatal("Expected error for negative page values")
	}

	var verr *catalog.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 2 {
		t.Errorf("Expected 2 field errors, got %d", len(verr.Errors))
	}
}

func TestSelect_ToSQL(t *testing.T) {
	s := Schema("public")
	pred := Predicate{}.
		And("e.title", OpLike, "Temp%").
		And("e.id", OpIn, []int64{1, 2})

	sql, args, err := Select{
		Columns: []string{"e.id", "e.title"},
		From:    s.Table("entries") + " e",
		Joins:   []string{"LEFT JOIN " + s.Table("licenses") + " l ON l.id = e.license_id"},
		Where:   pred,
		OrderBy: []string{"e.id ASC"},
		Page:    Page{Limit: intPtr(5)},
	}.ToSQL()
	if err != nil {
		t.Fatalf("ToSQL failed: %v", err)
	}

	expectedSQL := `SELECT e.id, e.title FROM "public"."entries" e ` +
		`LEFT JOIN "public"."licenses" l ON l.id = e.license_id ` +
		`WHERE e.title LIKE $1 AND e.id = ANY($2) ORDER BY e.id ASC LIMIT $3`
	if sql != expectedSQL {
		t.Errorf("Expected SQL:\n%s\ngot:\n%s", expectedSQL, sql)
	}
	if len(args) != 3 {
		t.Errorf("Expected 3 args, got %d", len(args))
	}
}

func TestSelect_RequiresFrom(t *testing.T) {
	if _, _, err := (Select{}).ToSQL(); err == nil {
		t.Error("Expected error for missing FROM")
	}
}
