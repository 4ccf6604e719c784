package schema

import (
	"fmt"
	"strings"
)

// mysqlKinds maps MySQL type names (as reported by the driver's
// ColumnType.DatabaseTypeName and by gorm's migrator) to harmonized kinds.
// The legacy wire-protocol aliases (VAR_STRING, LONG, LONGLONG, NEWDECIMAL)
// are included because some connectors still report them.
var mysqlKinds = map[string]Kind{
	"TINYINT":    KindInt,
	"SMALLINT":   KindInt,
	"MEDIUMINT":  KindInt,
	"INT":        KindInt,
	"INTEGER":    KindInt,
	"BIGINT":     KindInt,
	"INT24":      KindInt,
	"LONG":       KindInt,
	"LONGLONG":   KindInt,
	"SHORT":      KindInt,
	"YEAR":       KindInt,
	"BIT":        KindInt,
	"BOOL":       KindBool,
	"BOOLEAN":    KindBool,
	"FLOAT":      KindFloat,
	"DOUBLE":     KindFloat,
	"DECIMAL":    KindFloat,
	"NEWDECIMAL": KindFloat,
	"DATE":       KindTime,
	"DATETIME":   KindTime,
	"TIMESTAMP":  KindTime,
	"CHAR":       KindString,
	"VARCHAR":    KindString,
	"VAR_STRING": KindString,
	"STRING":     KindString,
	"TINYTEXT":   KindString,
	"TEXT":       KindString,
	"MEDIUMTEXT": KindString,
	"LONGTEXT":   KindString,
	"ENUM":       KindString,
	"SET":        KindString,
	"JSON":       KindString,
	"TIME":       KindString,
	"BINARY":     KindBytes,
	"VARBINARY":  KindBytes,
	"TINYBLOB":   KindBytes,
	"BLOB":       KindBytes,
	"MEDIUMBLOB": KindBytes,
	"LONGBLOB":   KindBytes,
}

// KindFromMySQL maps a MySQL database type name to a harmonized kind.
// Type names are matched case-insensitively and with any "(...)" size
// suffix stripped, so "varchar(255)" and "VARCHAR" are equivalent.
// TINYINT(1) is MySQL's conventional boolean and maps to KindBool.
func KindFromMySQL(databaseTypeName string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(databaseTypeName))

	if name == "TINYINT(1)" {
		return KindBool, nil
	}
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSuffix(strings.TrimSpace(name), " UNSIGNED")

	if k, ok := mysqlKinds[name]; ok {
		return k, nil
	}
	return KindString, fmt.Errorf("unsupported MySQL column type %q", databaseTypeName)
}
