package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/schema"
	"github.com/rpattn/restfilter/internal/store"
)

var (
	users = domain.EntitySchema{
		Name:  "users",
		Table: "users",
		Columns: []domain.Column{
			{Name: "id", Type: domain.ColumnTypeNumeric},
			{Name: "name", Type: domain.ColumnTypeText},
			{Name: "email", Type: domain.ColumnTypeText, Encrypted: true},
		},
		Fillable: []string{"name", "email"},
		Relations: []domain.Relation{
			{Name: "posts", Target: "posts", Cardinality: domain.CardinalityHasMany, ForeignKey: "user_id"},
		},
	}
	posts = domain.EntitySchema{
		Name:  "posts",
		Table: "posts",
		Columns: []domain.Column{
			{Name: "id", Type: domain.ColumnTypeNumeric},
			{Name: "user_id", Type: domain.ColumnTypeNumeric},
			{Name: "title", Type: domain.ColumnTypeText},
		},
		Fillable: []string{"user_id", "title"},
		Relations: []domain.Relation{
			{Name: "comments", Target: "comments", Cardinality: domain.CardinalityHasMany, ForeignKey: "post_id"},
		},
	}
	comments = domain.EntitySchema{
		Name:    "comments",
		Table:   "comments",
		Columns: []domain.Column{{Name: "id", Type: domain.ColumnTypeNumeric}, {Name: "post_id", Type: domain.ColumnTypeNumeric}},
	}
)

type execRecorder struct {
	DBTX
	sql  string
	args []any
	tag  pgconn.CommandTag
}

func (e *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql, e.args = sql, args
	return e.tag, nil
}

func newQuery(t *testing.T, key string) *query {
	t.Helper()
	registry := schema.NewRegistry().MustRegister(users, posts, comments)
	return New(nil, registry, key).Query(users).(*query)
}

func selectOf(t *testing.T, q *query, limit, offset int) (string, []any) {
	t.Helper()
	columns, _ := q.projection(store.IncludeTree{})
	sql, args, err := q.selectSQL(columns, limit, offset)
	require.NoError(t, err)
	return sql, args
}

func TestQuery_LikeEscapesWildcards(t *testing.T) {
	q := newQuery(t, "")
	q.Where(store.Like("name", "50%_off"))

	sql, args := selectOf(t, q, 0, 0)
	assert.Contains(t, sql, `FROM "users" AS t0`)
	assert.Contains(t, sql, `LOWER(CAST("t0"."name" AS TEXT)) LIKE LOWER($1)`)
	assert.Equal(t, []any{`%50\%\_off%`}, args)
}

func TestQuery_WhereAnyIsOneGroup(t *testing.T) {
	q := newQuery(t, "")
	q.Where(store.Eq("id", 1))
	q.WhereAny(store.Like("name", "a"), store.Eq("id", 2))

	sql, args := selectOf(t, q, 0, 0)
	assert.Contains(t, sql, `WHERE "t0"."id" = $1 AND (LOWER(CAST("t0"."name" AS TEXT)) LIKE LOWER($2) OR "t0"."id" = $3)`)
	assert.Equal(t, []any{1, "%a%", 2}, args)
}

func TestQuery_Predicates(t *testing.T) {
	tests := []struct {
		name string
		pred store.Predicate
		want string
	}{
		{"membership", store.In("id", 1, 2), `"t0"."id" IN ($1,$2)`},
		{"range", store.Between("id", 1, 5), `"t0"."id" BETWEEN $1 AND $2`},
		{"null", store.IsNull("name"), `"t0"."name" IS NULL`},
		{"not null", store.IsNotNull("name"), `"t0"."name" IS NOT NULL`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQuery(t, "")
			q.Where(tt.pred)
			sql, _ := selectOf(t, q, 0, 0)
			assert.Contains(t, sql, tt.want)
		})
	}
}

func TestQuery_UndeclaredColumnsNeverReachSQL(t *testing.T) {
	q := newQuery(t, "")
	q.Where(store.Eq(`name"; DROP TABLE users; --`, 1))
	q.OrderBy("missing", domain.SortDirectionAsc)
	q.GroupBy("missing")

	sql, args := selectOf(t, q, 0, 0)
	assert.NotContains(t, sql, "WHERE")
	assert.NotContains(t, sql, "ORDER BY")
	assert.NotContains(t, sql, "DROP")
	assert.Empty(t, args)
}

func TestQuery_NestedExistsChains(t *testing.T) {
	q := newQuery(t, "")
	q.Exists("posts.comments")
	q.NotExists("posts")
	q.Exists("unknown")

	sql, _ := selectOf(t, q, 0, 0)
	assert.Contains(t, sql, `EXISTS (SELECT 1 FROM "posts" AS t1 WHERE "t1"."user_id" = "t0"."id" AND EXISTS (SELECT 1 FROM "comments" AS t2 WHERE "t2"."post_id" = "t1"."id"))`)
	assert.Contains(t, sql, `NOT EXISTS (SELECT 1 FROM "posts" AS t1 WHERE "t1"."user_id" = "t0"."id")`)
	assert.NotContains(t, sql, "unknown")
}

func TestQuery_EncryptedColumns(t *testing.T) {
	q := newQuery(t, "secret")
	q.Where(store.EncryptedLike("email", "example"))

	sql, args := selectOf(t, q, 0, 0)
	assert.Contains(t, sql, `pgp_sym_decrypt("t0"."email", $1) AS "email"`)
	assert.Contains(t, sql, `LOWER(pgp_sym_decrypt("t0"."email", $2)) LIKE LOWER($3)`)
	assert.Equal(t, []any{"secret", "secret", "%example%"}, args)
}

func TestQuery_OrderLimitAndCount(t *testing.T) {
	q := newQuery(t, "")
	q.Columns("id", "name")
	q.Where(store.Eq("name", "bob"))
	q.OrderBy("name", domain.SortDirectionAsc)
	q.OrderBy("id", domain.SortDirectionDesc)

	sql, _ := selectOf(t, q, 10, 20)
	assert.Contains(t, sql, `SELECT "t0"."id", "t0"."name" FROM`)
	assert.Contains(t, sql, `ORDER BY "t0"."name" ASC, "t0"."id" DESC LIMIT 10 OFFSET 20`)

	count, args, err := q.countSQL()
	require.NoError(t, err)
	assert.Contains(t, count, `SELECT COUNT(*) FROM (SELECT "t0"."id" FROM "users" AS t0 WHERE "t0"."name" = $1) AS sub`)
	assert.Equal(t, []any{"bob"}, args)
}

func TestQuery_GroupByKeepsFirstRowPerGroup(t *testing.T) {
	q := newQuery(t, "")
	q.GroupBy("name")
	q.OrderBy("id", domain.SortDirectionDesc)

	sql, _ := selectOf(t, q, 0, 0)
	assert.Contains(t, sql, `SELECT DISTINCT ON ("t0"."name")`)
	assert.Contains(t, sql, `ORDER BY "t0"."name", "t0"."id" DESC) AS grouped ORDER BY "id" DESC`)
}

func TestQuery_GroupByOuterOrderUsesProjectedColumns(t *testing.T) {
	q := newQuery(t, "")
	q.Columns("name")
	q.GroupBy("name")
	q.OrderBy("id", domain.SortDirectionDesc)

	sql, _ := selectOf(t, q, 0, 0)
	assert.Contains(t, sql, `ORDER BY "t0"."name", "t0"."id" DESC) AS grouped`)
	assert.NotContains(t, sql, `AS grouped ORDER BY`)
}

func TestQuery_ProjectionAddsHiddenJoinColumns(t *testing.T) {
	registry := schema.NewRegistry().MustRegister(users, posts, comments)
	q := New(nil, registry, "").Query(posts).(*query)
	q.Columns("title")

	tree := store.IncludeTree{}
	tree.Add("comments")
	columns, hidden := q.projection(tree)

	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = column.Name
	}
	assert.Equal(t, []string{"title", "id"}, names)
	assert.Equal(t, []string{"id"}, hidden)
}

func TestStore_DeleteMissingRowIsNotFound(t *testing.T) {
	db := &execRecorder{tag: pgconn.NewCommandTag("DELETE 0")}
	s := New(db, schema.NewRegistry(), "")

	err := s.DeleteByID(context.Background(), users, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, `DELETE FROM "users" WHERE "id" = $1`, db.sql)
	assert.Equal(t, []any{7}, db.args)

	db.tag = pgconn.NewCommandTag("DELETE 1")
	assert.NoError(t, s.DeleteByID(context.Background(), users, 7))
}

func TestWriteValues_EncryptsAndDropsUnknownColumns(t *testing.T) {
	s := New(nil, schema.NewRegistry(), "secret")
	values := s.writeValues(users, domain.Record{"name": "Ann", "email": "ann@example.com", "bogus": 1})

	require.Len(t, values, 2)
	assert.Equal(t, "Ann", values[pgx.Identifier{"name"}.Sanitize()])
	assert.NotEqual(t, "ann@example.com", values[pgx.Identifier{"email"}.Sanitize()])
}

func TestJoinKey(t *testing.T) {
	key, ok := joinKey(int64(42))
	assert.True(t, ok)
	assert.Equal(t, "42", key)

	_, ok = joinKey(nil)
	assert.False(t, ok)

	key, _ = joinKey([16]byte{0x12, 0x34})
	assert.Equal(t, "12340000-0000-0000-0000-000000000000", key)

	key, _ = joinKey("INV-7")
	assert.Equal(t, "INV-7", key)
}
