package adapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseSQLAdapter_Close(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		expectErr bool
	}{
		{
			name:      "close with nil DB",
			setupDB:   false,
			expectErr: false,
		},
		{
			name:      "close with open DB",
			setupDB:   true,
			expectErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}

			err := base.Close()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.False(t, base.IsConnected(), "close releases the connection")
			assert.NoError(t, base.Close(), "second close is a no-op")
		})
	}
}

func TestBaseSQLAdapter_Exec(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		expectErr bool
		errMsg    string
	}{
		{
			name:      "exec without connection",
			setupDB:   false,
			sql:       "SELECT 1",
			expectErr: true,
			errMsg:    "database connection not established",
		},
		{
			name:    "exec success",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE partners").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			sql: "CREATE TABLE partners (partner_id INT)",
		},
		{
			name:    "exec with error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)
			},
			sql:       "INVALID SQL",
			expectErr: true,
			errMsg:    "failed to execute SQL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()

				if tt.setupMock != nil {
					tt.setupMock(mock)
				}
				base.DB = db
			}

			err := base.Exec(ctx, tt.sql)
			if tt.expectErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func columnRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"table_name", "column_name", "data_type", "is_nullable", "ordinal_position", "character_maximum_length",
	}).
		AddRow("partners", "partner_id", "integer", "NO", 1, nil).
		AddRow("partners", "partner_name", "character varying", "YES", 2, 50).
		AddRow("sales", "sale_id", "integer", "NO", 1, nil).
		AddRow("sales", "partner_id", "integer", "YES", 2, nil).
		AddRow("sales", "revenue", "numeric", "YES", 3, nil)
}

func TestBaseSQLAdapter_ReflectInformationSchema(t *testing.T) {
	tests := []struct {
		name       string
		setupDB    bool
		only       []string
		setupMock  func(mock sqlmock.Sqlmock)
		wantTables []string
		expectErr  bool
		errMsg     string
	}{
		{
			name:      "reflect without connection",
			setupDB:   false,
			expectErr: true,
			errMsg:    "database connection not established",
		},
		{
			name:    "reflect all tables",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM information_schema.columns").
					WithArgs("public").
					WillReturnRows(columnRows())
				mock.ExpectQuery("PRIMARY KEY").
					WithArgs("public").
					WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
						AddRow("partners", "partner_id").
						AddRow("sales", "sale_id"))
			},
			wantTables: []string{"partners", "sales"},
		},
		{
			name:    "reflect only some tables",
			setupDB: true,
			only:    []string{"sales"},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM information_schema.columns").
					WithArgs("public").
					WillReturnRows(columnRows())
				mock.ExpectQuery("PRIMARY KEY").
					WithArgs("public").
					WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
						AddRow("sales", "sale_id"))
			},
			wantTables: []string{"sales"},
		},
		{
			name:    "column query error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM information_schema.columns").WillReturnError(assert.AnError)
			},
			expectErr: true,
			errMsg:    "failed to query column metadata",
		},
		{
			name:    "primary key query error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM information_schema.columns").WillReturnRows(columnRows())
				mock.ExpectQuery("PRIMARY KEY").WillReturnError(assert.AnError)
			},
			expectErr: true,
			errMsg:    "failed to query primary keys",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			base := &BaseSQLAdapter{}

			var mock sqlmock.Sqlmock
			if tt.setupDB {
				db, m, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()
				mock = m
				if tt.setupMock != nil {
					tt.setupMock(mock)
				}
				base.DB = db
			}

			schema, err := base.ReflectInformationSchema(ctx, "public", DollarPlaceholder, tt.only)
			if tt.expectErr {
				require.Error(t, err)
				assert.Nil(t, schema)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
				return
			}

			require.NoError(t, err)
			var names []string
			for _, tbl := range schema.Tables {
				names = append(names, tbl.Name)
			}
			assert.Equal(t, tt.wantTables, names)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBaseSQLAdapter_ReflectedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("FROM information_schema.columns").WillReturnRows(columnRows())
	mock.ExpectQuery("PRIMARY KEY").WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
		AddRow("partners", "partner_id"))

	base := &BaseSQLAdapter{DB: db}
	schema, err := base.ReflectInformationSchema(context.Background(), "main", QuestionPlaceholder, nil)
	require.NoError(t, err)

	partners, ok := schema.Table("partners")
	require.True(t, ok)
	assert.Equal(t, []string{"partner_id"}, partners.PrimaryKey)

	id, ok := partners.Column("partner_id")
	require.True(t, ok)
	assert.True(t, id.PrimaryKey)
	assert.False(t, id.Nullable)
	assert.Equal(t, "INTEGER", id.Type.Name)

	name, ok := partners.Column("partner_name")
	require.True(t, ok)
	assert.Equal(t, 50, name.Type.Length)
	assert.True(t, name.Nullable)

	sales, ok := schema.Table("sales")
	require.True(t, ok)
	assert.Empty(t, sales.PrimaryKey, "no primary key constraint reported")
	assert.Len(t, sales.Columns, 3)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", QuestionPlaceholder(3))
	assert.Equal(t, "$2", DollarPlaceholder(2))
}
