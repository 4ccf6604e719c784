package schema

import "testing"

func TestKindFromMySQL(t *testing.T) {
	cases := []struct {
		typeName string
		want     Kind
	}{
		{"VARCHAR", KindString},
		{"varchar(255)", KindString},
		{"VAR_STRING", KindString},
		{"INT", KindInt},
		{"BIGINT(20) UNSIGNED", KindInt},
		{"bigint unsigned", KindInt},
		{"LONGLONG", KindInt},
		{"NEWDECIMAL", KindFloat},
		{"decimal(10,2)", KindFloat},
		{"DOUBLE", KindFloat},
		{"TINYINT(1)", KindBool},
		{"TINYINT", KindInt},
		{"DATETIME", KindTime},
		{"timestamp", KindTime},
		{"DATE", KindTime},
		{"BLOB", KindBytes},
		{"JSON", KindString},
	}

	for _, c := range cases {
		got, err := KindFromMySQL(c.typeName)
		if err != nil {
			t.Errorf("KindFromMySQL(%q) error = %v", c.typeName, err)
			continue
		}
		if got != c.want {
			t.Errorf("KindFromMySQL(%q) = %s, want %s", c.typeName, got, c.want)
		}
	}
}

func TestKindFromMySQLUnknownType(t *testing.T) {
	got, err := KindFromMySQL("GEOMETRY")
	if err == nil {
		t.Fatal("Expected an error for an unsupported type")
	}
	// Unknown types still degrade to string so a caller may choose to proceed.
	if got != KindString {
		t.Errorf("Expected string fallback, got %s", got)
	}
}
