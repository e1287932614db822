package filter

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/repository"
	"github.com/rpattn/restfilter/internal/schema"
	"github.com/rpattn/restfilter/internal/store/memory"
)

var (
	tickets = domain.EntitySchema{
		Name:  "tickets",
		Table: "tickets",
		Columns: []domain.Column{
			{Name: "id", Type: domain.ColumnTypeNumeric},
			{Name: "subject", Type: domain.ColumnTypeText},
			{Name: "code", Type: domain.ColumnTypeText},
			{Name: "priority", Type: domain.ColumnTypeNumeric},
			{Name: "opened_on", Type: domain.ColumnTypeDate},
		},
		Fillable: []string{"subject", "code", "priority", "opened_on"},
		Relations: []domain.Relation{
			{Name: "replies", Target: "replies", Cardinality: domain.CardinalityHasMany, ForeignKey: "ticket_id"},
		},
	}
	replies = domain.EntitySchema{
		Name:  "replies",
		Table: "replies",
		Columns: []domain.Column{
			{Name: "id", Type: domain.ColumnTypeNumeric},
			{Name: "ticket_id", Type: domain.ColumnTypeNumeric},
			{Name: "body", Type: domain.ColumnTypeText},
		},
		Fillable: []string{"ticket_id", "body"},
	}
)

type fixture struct {
	registry *schema.Registry
	repo     *repository.Repository
}

func newFixture(t *testing.T, count int) fixture {
	t.Helper()
	registry := schema.NewRegistry().MustRegister(tickets, replies)
	st := memory.New(registry, nil)
	repo := repository.New(tickets, st, registry)
	replyRepo := repository.New(replies, st, registry)

	ctx := context.Background()
	for i := 1; i <= count; i++ {
		_, err := repo.Create(ctx, domain.Record{
			"subject":   fmt.Sprintf("Ticket %02d", i),
			"code":      fmt.Sprintf("T-%d", i),
			"priority":  i % 5,
			"opened_on": fmt.Sprintf("2024-01-%02d", i),
		})
		require.NoError(t, err)
	}
	for _, ticketID := range []int{1, 1, 3} {
		_, err := replyRepo.Create(ctx, domain.Record{"ticket_id": ticketID, "body": "ack"})
		require.NoError(t, err)
	}
	return fixture{registry: registry, repo: repo}
}

func (f fixture) run(t *testing.T, raw string) domain.Result {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)

	p := New(tickets, f.registry, f.repo)
	result, err := p.Run(context.Background(), f.repo.Select(), domain.ParamsFromQuery(values))
	require.NoError(t, err)
	return result
}

func ids(result domain.Result) []int64 {
	out := make([]int64, len(result.Data))
	for i, row := range result.Data {
		out[i] = row["id"].(int64)
	}
	return out
}

func TestProperty_DateRangeIsInclusive(t *testing.T) {
	f := newFixture(t, 25)

	result := f.run(t, "opened_on=2024-01-03,2024-01-05")
	assert.Equal(t, []int64{3, 4, 5}, ids(result))

	result = f.run(t, "code=T-3,T-5")
	assert.Equal(t, []int64{3, 5}, ids(result))
}

func TestProperty_NumericVersusTextMatching(t *testing.T) {
	f := newFixture(t, 12)

	text := f.run(t, "subject=TICKET+1")
	assert.Equal(t, []int64{10, 11, 12}, ids(text))

	numeric := f.run(t, "priority=2")
	assert.Equal(t, []int64{2, 7, 12}, ids(numeric))

	ignored := f.run(t, "priority=abc")
	assert.Len(t, ignored.Data, 12)
}

func TestProperty_NumbersAreReadInBaseTen(t *testing.T) {
	f := newFixture(t, 12)

	for _, raw := range []string{"priority=0x3", "priority=0b11", "priority=0o3", "priority=1_0"} {
		result := f.run(t, raw)
		assert.Len(t, result.Data, 12, raw)
	}

	padded := f.run(t, "priority=03")
	assert.Equal(t, []int64{3, 8}, ids(padded))

	listed := f.run(t, "whereInColumn=id[010]")
	assert.Equal(t, []int64{10}, ids(listed))

	mixed := f.run(t, "id[]=010&id[]=0x2")
	assert.Equal(t, []int64{10}, ids(mixed))
}

func TestProperty_PaginationInvariants(t *testing.T) {
	f := newFixture(t, 25)

	for page, want := range []int{10, 10, 5} {
		result := f.run(t, fmt.Sprintf("limit=10&page=%d&orderByAsc=id", page+1))

		require.NotNil(t, result.Pages)
		require.NotNil(t, result.Page)
		require.NotNil(t, result.PerPage)
		assert.Equal(t, 3, *result.Pages)
		assert.Equal(t, page, *result.Page)
		assert.Equal(t, 10, *result.PerPage)
		assert.EqualValues(t, 25, result.Count)
		assert.Equal(t, want, result.Filter)
		assert.Len(t, result.Data, want)
	}
}

func TestProperty_PageBeyondAddressableRowsIsEmpty(t *testing.T) {
	f := newFixture(t, 25)

	result := f.run(t, "limit=10&page=922337203685477583")
	assert.Empty(t, result.Data)
	assert.Equal(t, 0, result.Filter)
	assert.EqualValues(t, 25, result.Count)
	require.NotNil(t, result.Page)
	assert.Equal(t, 922337203685477582, *result.Page)
	require.NotNil(t, result.Pages)
	assert.Equal(t, 3, *result.Pages)
}

func TestProperty_RelationPresenceFilters(t *testing.T) {
	f := newFixture(t, 4)

	notEmpty := f.run(t, "withNotEmpty=replies")
	assert.Equal(t, []int64{1, 3}, ids(notEmpty))
	assert.Len(t, notEmpty.Data[0]["replies"], 2)
	assert.Len(t, notEmpty.Data[1]["replies"], 1)

	empty := f.run(t, "withEmpty=replies")
	assert.Equal(t, []int64{2, 4}, ids(empty))
	for _, row := range empty.Data {
		assert.NotContains(t, row, "replies")
	}
}

func TestProperty_Idempotence(t *testing.T) {
	f := newFixture(t, 25)
	raw := "query=ticket&priority[]=1&priority[]=2&with=replies&limit=4&page=2&order=asc&order_by=subject"

	first := f.run(t, raw)
	second := f.run(t, raw)
	assert.Equal(t, first, second)
}

func TestProperty_WhereInColumn(t *testing.T) {
	f := newFixture(t, 6)

	result := f.run(t, "whereInColumn=priority[1,2,3]")
	assert.Equal(t, []int64{1, 2, 3, 6}, ids(result))

	malformed := f.run(t, "whereInColumn=priority[1,2,3")
	assert.Len(t, malformed.Data, 6)
}

func TestProperty_FreeTextSearchUnion(t *testing.T) {
	f := newFixture(t, 12)

	// "3" matches ticket 3 by substring and tickets 3 and 8 by priority.
	result := f.run(t, "query=3")
	assert.Equal(t, []int64{3, 8}, ids(result))

	result = f.run(t, "query=T-1")
	assert.Equal(t, []int64{1, 10, 11, 12}, ids(result))
}

func TestProperty_OrderRewriteAndGrouping(t *testing.T) {
	f := newFixture(t, 10)

	ordered := f.run(t, "order=desc&order_by=id&limit=3")
	assert.Equal(t, []int64{10, 9, 8}, ids(ordered))

	grouped := f.run(t, "groupBy=priority&orderByAsc=id")
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(grouped))
}
