package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leapmetrics/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   adapter.Config
		expected string
	}{
		{
			name: "basic connection",
			config: adapter.Config{
				Host:     "localhost",
				Port:     5432,
				Database: "testdb",
				User:     "user",
				Password: "pass",
			},
			expected: "host=localhost port=5432 dbname=testdb sslmode=disable user=user password=pass",
		},
		{
			name: "with custom sslmode and extra options",
			config: adapter.Config{
				Host:     "prod.example.com",
				Database: "proddb",
				User:     "admin",
				Options:  map[string]string{"sslmode": "require", "application_name": "leap metrics"},
			},
			expected: "host=prod.example.com port=5432 dbname=proddb sslmode=require user=admin application_name='leap metrics'",
		},
		{
			name: "defaults",
			config: adapter.Config{
				Database: "mydb",
			},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable",
		},
		{
			name: "password with quote",
			config: adapter.Config{
				Database: "mydb",
				Password: "it's",
			},
			expected: `host=localhost port=5432 dbname=mydb sslmode=disable password='it\'s'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := buildPostgresDSN(tt.config)
			assert.Equal(t, tt.expected, dsn)
		})
	}
}

func TestNew(t *testing.T) {
	adp := New(nil)

	assert.NotNil(t, adp, "New() should return non-nil adapter")
	assert.Nil(t, adp.DB, "DB should be nil before Connect")
	assert.False(t, adp.IsConnected(), "should not be connected initially")
	assert.Equal(t, "postgres", adp.DialectName(), "dialect name should be postgres")
}

func TestAdapter_ReflectWithoutConnection(t *testing.T) {
	_, err := New(nil).Reflect(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not established")
}

func TestAdapter_Reflect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`table_schema = \$1`).
		WithArgs("analytics").
		WillReturnRows(sqlmock.NewRows([]string{
			"table_name", "column_name", "data_type", "is_nullable", "ordinal_position", "character_maximum_length",
		}).
			AddRow("leads", "lead_id", "bigint", "NO", 1, nil).
			AddRow("leads", "lead_name", "character varying", "YES", 2, 100))
	mock.ExpectQuery("PRIMARY KEY").
		WithArgs("analytics").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).AddRow("leads", "lead_id"))

	adp := New(nil)
	adp.DB = db
	adp.Cfg = adapter.Config{Type: "postgres", Schema: "analytics"}

	schema, err := adp.Reflect(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	assert.Equal(t, []string{"lead_id"}, schema.Tables[0].PrimaryKey)
	assert.Equal(t, 100, schema.Tables[0].Columns[1].Type.Length)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Registry(t *testing.T) {
	assert.True(t, adapter.IsRegistered("postgres"), "postgres adapter should be registered")

	factory, ok := adapter.Get("postgres")
	require.True(t, ok, "should be able to get postgres factory")

	pg, ok := factory(nil).(*Adapter)
	assert.True(t, ok, "factory should return *Adapter")
	assert.Equal(t, "postgres", pg.DialectName())
}

func TestAdapter_Close(t *testing.T) {
	// Close should not error even without connection
	adp := New(nil)
	assert.NoError(t, adp.Close())
}
