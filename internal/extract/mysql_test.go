package extract

import (
	"testing"
	"time"

	"graphetl/internal/models"
	"graphetl/internal/schema"
)

func TestNormalizeSQLValue(t *testing.T) {
	if got := normalizeSQLValue([]byte("42"), schema.KindInt); got != int64(42) {
		t.Errorf("Expected int64(42), got %v (%T)", got, got)
	}
	if got := normalizeSQLValue([]byte("2.5"), schema.KindFloat); got != 2.5 {
		t.Errorf("Expected 2.5, got %v", got)
	}
	if got := normalizeSQLValue([]byte("0"), schema.KindBool); got != false {
		t.Errorf("Expected false, got %v", got)
	}
	if got := normalizeSQLValue([]byte("1"), schema.KindBool); got != true {
		t.Errorf("Expected true, got %v", got)
	}
	if got := normalizeSQLValue([]byte("plain"), schema.KindString); got != "plain" {
		t.Errorf("Expected string, got %v (%T)", got, got)
	}
	if got := normalizeSQLValue(nil, schema.KindString); got != nil {
		t.Errorf("Expected nil, got %v", got)
	}

	got := normalizeSQLValue([]byte("2024-05-01 12:30:00"), schema.KindTime)
	ts, ok := got.(time.Time)
	if !ok {
		t.Fatalf("Expected time.Time, got %T", got)
	}
	if ts.Hour() != 12 {
		t.Errorf("Unexpected parsed time %v", ts)
	}
}

func TestSelectSpecKeepAndProperty(t *testing.T) {
	spec := SelectSpec{
		URIKey: "orcid",
		Fields: []string{"name", "homepage"},
		Rename: map[string]string{"homepage": "website"},
	}

	if spec.keep("orcid") {
		t.Error("Identity column must not be kept as a property")
	}
	if !spec.keep("name") || !spec.keep("homepage") {
		t.Error("Allow-listed columns must be kept")
	}
	if spec.keep("junk") {
		t.Error("Columns outside the allow-list must be dropped")
	}
	if spec.property("homepage") != "website" {
		t.Errorf("Expected rename to apply, got %s", spec.property("homepage"))
	}
	if spec.property("name") != "name" {
		t.Errorf("Expected unrenamed column to keep its name")
	}
}

func TestIncomplete(t *testing.T) {
	node := SelectSpec{URIKey: "uri"}
	if !incomplete(node, &models.Record{}) {
		t.Error("Node record without a URI must be incomplete")
	}
	if incomplete(node, &models.Record{URI: "x"}) {
		t.Error("Node record with a URI must be complete")
	}

	rel := SelectSpec{StartKey: "a", EndKey: "b"}
	if !incomplete(rel, &models.Record{StartURI: "x"}) {
		t.Error("Relation record missing an endpoint must be incomplete")
	}
	if incomplete(rel, &models.Record{StartURI: "x", EndURI: "y"}) {
		t.Error("Relation record with both endpoints must be complete")
	}
}
