package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/schema"
	"github.com/rpattn/restfilter/internal/store"
	"github.com/rpattn/restfilter/internal/store/memory"
)

var (
	projects = domain.EntitySchema{
		Name:  "projects",
		Table: "projects",
		Columns: []domain.Column{
			{Name: "id", Type: domain.ColumnTypeNumeric},
			{Name: "name", Type: domain.ColumnTypeText},
			{Name: "budget", Type: domain.ColumnTypeDecimal},
			{Name: "archived", Type: domain.ColumnTypeBoolean},
		},
		Fillable: []string{"name", "budget", "archived"},
		Relations: []domain.Relation{
			{Name: "tasks", Target: "tasks", Cardinality: domain.CardinalityHasMany, ForeignKey: "project_id"},
		},
	}
	tasks = domain.EntitySchema{
		Name:  "tasks",
		Table: "tasks",
		Columns: []domain.Column{
			{Name: "id", Type: domain.ColumnTypeNumeric},
			{Name: "project_id", Type: domain.ColumnTypeNumeric},
			{Name: "title", Type: domain.ColumnTypeText},
		},
		Fillable: []string{"project_id", "title"},
	}
)

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	registry := schema.NewRegistry().MustRegister(projects, tasks)
	svc := New(registry, memory.New(registry, nil), opts...)

	ctx := context.Background()
	for _, name := range []string{"Apollo", "Gemini", "Mercury"} {
		_, err := svc.Create(ctx, "projects", domain.Record{"name": name, "budget": 10.5, "archived": false})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "tasks", domain.Record{"project_id": int64(2), "title": "launch"})
	require.NoError(t, err)
	return svc
}

func TestService_GetRunsPipeline(t *testing.T) {
	svc := newService(t)

	result, err := svc.Get(context.Background(), "projects", nil, domain.Params{
		"name": domain.Scalar("ini"),
	})
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "Gemini", result.Data[0]["name"])
	assert.EqualValues(t, 1, result.Count)
}

func TestService_GetProjectsColumns(t *testing.T) {
	svc := newService(t)

	result, err := svc.Get(context.Background(), "projects", []string{"id", "name"}, domain.Params{})
	require.NoError(t, err)
	require.Len(t, result.Data, 3)
	assert.NotContains(t, result.Data[0], "budget")
}

func TestService_GetEagerLoadsRelations(t *testing.T) {
	svc := newService(t)

	result, err := svc.Get(context.Background(), "projects", nil, domain.Params{
		"withNotEmpty": domain.Scalar("tasks"),
	})
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "Gemini", result.Data[0]["name"])
	assert.Len(t, result.Data[0]["tasks"], 1)
}

func TestService_UnknownEntity(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "missing", nil, domain.Params{})
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = svc.Find(ctx, "missing", "1", nil)
	assert.ErrorIs(t, err, ErrUnknownEntity)

	assert.ErrorIs(t, svc.Delete(ctx, "missing", "1"), ErrUnknownEntity)
}

func TestService_CRUD(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	row, err := svc.Find(ctx, "projects", "2", []string{"tasks"})
	require.NoError(t, err)
	assert.Equal(t, "Gemini", row["name"])
	assert.Len(t, row["tasks"], 1)

	updated, err := svc.Update(ctx, "projects", "2", domain.Record{"name": "Gemini II"})
	require.NoError(t, err)
	assert.Equal(t, "Gemini II", updated["name"])

	require.NoError(t, svc.Delete(ctx, "projects", "2"))
	_, err = svc.Find(ctx, "projects", "2", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Update(ctx, "projects", "2", domain.Record{"name": "gone"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_CustomHandler(t *testing.T) {
	archivedOnly := func(q store.Query, value domain.Value, params domain.Params) store.Query {
		return q.Where(store.Eq("archived", true))
	}
	svc := newService(t, WithHandler("archivedOnly", archivedOnly))

	result, err := svc.Get(context.Background(), "projects", nil, domain.Params{
		"archivedOnly": domain.Scalar("1"),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Data)

	result, err = svc.Get(context.Background(), "projects", nil, domain.Params{})
	require.NoError(t, err)
	assert.Len(t, result.Data, 3)
}

func TestService_Entities(t *testing.T) {
	svc := newService(t)
	assert.Equal(t, []string{"projects", "tasks"}, svc.Entities())
}
