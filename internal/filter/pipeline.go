// Package filter interprets loosely typed request parameters into query
// operations. A Pipeline walks a fixed, prioritized list of filter names,
// dispatching each to a built-in handler or to the generic column rules,
// and the Assembler turns the resulting query into the response envelope.
package filter

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/logger"
	"github.com/rpattn/restfilter/internal/schema"
	"github.com/rpattn/restfilter/internal/store"
)

// Handler applies one named filter to the query.
type Handler func(q store.Query, value domain.Value, params domain.Params) store.Query

// Relations is the part of the repository facade the relation filters use.
type Relations interface {
	WithRelationIfExists(q store.Query, relations ...string) store.Query
	WithRelationIfNotEmpty(q store.Query, relations ...string) store.Query
	WithRelationEmpty(q store.Query, relations ...string) store.Query
	HasRelationChildren(q store.Query, relations ...string) store.Query
}

// Built-in filter names, in evaluation order after the entity's own columns.
const (
	FilterQuery               = "query"
	FilterWhereNull           = "whereNull"
	FilterWhereNotNull        = "whereNotNull"
	FilterWith                = "with"
	FilterWithNotEmpty        = "withNotEmpty"
	FilterWithEmpty           = "withEmpty"
	FilterHasRelationChildren = "hasRelationChildren"
	FilterOrderBy             = "orderBy"
	FilterOrderByAsc          = "orderByAsc"
	FilterOrderByDesc         = "orderByDesc"
	FilterPaginated           = "paginated"
	FilterGroupBy             = "groupBy"
	FilterWhereInColumn       = "whereInColumn"
	FilterEncrypted           = "encrypted"
)

// Meta parameters read outside the handler loop.
const (
	ParamLimit     = "limit"
	ParamPage      = "page"
	ParamOrder     = "order"
	ParamOrderBy   = "order_by"
	ParamAscending = "ascending"
)

// trailingColumn is appended to every specification.
const trailingColumn = "created_at"

var coreFilters = []string{
	FilterQuery,
	FilterWhereNull,
	FilterWhereNotNull,
	FilterWith,
	FilterWithNotEmpty,
	FilterWithEmpty,
	FilterHasRelationChildren,
	FilterOrderBy,
	FilterOrderByAsc,
	FilterOrderByDesc,
	FilterPaginated,
	FilterGroupBy,
	FilterWhereInColumn,
	FilterEncrypted,
}

// Pipeline applies request parameters to a query for one entity. It is
// built per request and must not be shared.
type Pipeline struct {
	entity    domain.EntitySchema
	columns   schema.ColumnRegistry
	relations Relations
	spec      []string
	handlers  map[string]Handler
	log       zerolog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger replaces the logger used for skipped filters.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithHandler registers an extra named filter, or replaces a built-in.
// New names are evaluated after the built-ins, before created_at.
func WithHandler(name string, handler Handler) Option {
	return func(p *Pipeline) {
		if _, exists := p.handlers[name]; !exists {
			spec := append([]string(nil), p.spec...)
			if last := len(spec) - 1; last >= 0 && spec[last] == trailingColumn {
				spec = append(spec[:last], name, trailingColumn)
			} else {
				spec = append(spec, name)
			}
			p.spec = dedupe(spec)
		}
		p.handlers[name] = handler
	}
}

// New builds the filter specification and the handler registry for entity.
func New(entity domain.EntitySchema, columns schema.ColumnRegistry, relations Relations, opts ...Option) *Pipeline {
	p := &Pipeline{
		entity:    entity,
		columns:   columns,
		relations: relations,
		spec:      Specification(entity),
		log:       *logger.Logger(),
	}
	p.handlers = p.builtins()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Specification returns the ordered filter names for entity: fillable
// columns, guarded columns, the built-in filters and created_at. Repeated
// names keep their first position.
func Specification(entity domain.EntitySchema) []string {
	names := make([]string, 0, len(entity.Fillable)+len(entity.Guarded)+len(coreFilters)+1)
	names = append(names, entity.Fillable...)
	names = append(names, entity.Guarded...)
	names = append(names, coreFilters...)
	names = append(names, trailingColumn)
	return dedupe(names)
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Spec returns a copy of the filter specification.
func (p *Pipeline) Spec() []string {
	return append([]string(nil), p.spec...)
}

// Apply mutates q according to params and returns it. params is never
// modified.
func (p *Pipeline) Apply(q store.Query, params domain.Params) store.Query {
	params = rewriteOrder(params)

	for _, name := range p.spec {
		value, ok := params.Get(name)
		if !ok || value.Empty() {
			continue
		}

		if handler, ok := p.handlers[name]; ok {
			q = handler(q, value, params)
			continue
		}

		if p.columns.ColumnExists(p.entity.Name, name) {
			q = p.applyColumn(q, name, value, params)
			continue
		}

		p.skip(name, value, "not a filter or column")
	}
	return q
}

// rewriteOrder turns order/order_by into orderByAsc or orderByDesc on a
// copy of params.
func rewriteOrder(params domain.Params) domain.Params {
	order, ok := params.Get(ParamOrder)
	if !ok {
		return params
	}

	out := params.Clone()
	column := out[ParamOrderBy]
	if strings.EqualFold(strings.TrimSpace(order.String()), string(domain.SortDirectionAsc)) {
		out[FilterOrderByAsc] = column
	} else {
		out[FilterOrderByDesc] = column
	}
	return out
}

func (p *Pipeline) skip(name string, value domain.Value, reason string) {
	p.log.Debug().
		Str("entity", p.entity.Name).
		Str("filter", name).
		Str("value", value.String()).
		Msgf("skipping filter: %s", reason)
}

// existing keeps the names that are declared columns of the entity.
func (p *Pipeline) existing(filter string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if p.columns.ColumnExists(p.entity.Name, name) {
			out = append(out, name)
			continue
		}
		p.skip(filter, domain.Scalar(name), "unknown column")
	}
	return out
}

// encryptedColumns returns the columns named by the encrypted parameter.
func encryptedColumns(params domain.Params) map[string]bool {
	value, ok := params.Get(FilterEncrypted)
	if !ok {
		return nil
	}
	out := make(map[string]bool)
	for _, name := range value.Values() {
		out[name] = true
	}
	return out
}

// truthy treats anything but "", "0" and "false" as set.
func truthy(params domain.Params, name string) bool {
	value, ok := params.Get(name)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(value.String())) {
	case "", "0", "false":
		return false
	}
	return true
}
