package extract

// compile-time checks that every extractor implements the Source interface
var (
	_ Source = (*MySQLSource)(nil)
	_ Source = (*FileSource)(nil)
	_ Source = (*MongoSource)(nil)
)
