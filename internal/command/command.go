// Package command defines the parsed command tree that is the sole
// contract between internal/sqlparse and internal/exec (spec §6.2): a
// tagged sum of concrete Go types rather than untyped maps, per spec §9's
// Design Notes ("Command tree. Represent the command tree as a tagged sum
// with variants per §6.2 ... The engine dispatches on the tag.").
package command

import "github.com/firatkizilirmakk/vibecoded-pysqlite/internal/value"

// Command is implemented by every statement shape the parser can produce.
// The execution engine type-switches on the concrete type to dispatch.
type Command interface {
	commandNode()
}

// ColumnSpec names one declared column of a CREATE TABLE statement.
type ColumnSpec struct {
	Name string
	Type value.ColumnType
}

// CreateTable is `CREATE TABLE name (col TYPE [PRIMARY KEY], ...)`, with
// exactly one column marked PRIMARY KEY.
type CreateTable struct {
	TableName  string
	Columns    []ColumnSpec
	PrimaryKey string
}

// CreateIndex is `CREATE INDEX name ON table (column)`.
type CreateIndex struct {
	IndexName string
	TableName string
	Column    string
}

// Insert is `INSERT INTO table VALUES (...)`; Values are positional,
// matched against the table's column order by internal/exec.
type Insert struct {
	TableName string
	Values    []value.Value
}

// Update is `UPDATE table SET col = val, ... [WHERE ...]`.
type Update struct {
	TableName string
	Set       map[string]value.Value
	Where     *Clause // nil if absent
}

// Delete is `DELETE FROM table WHERE ...`; Where is required by spec's
// safety rule (ErrDeleteWithoutWhere enforced by internal/exec, not by this
// type — a nil Where here is always rejected before execution).
type Delete struct {
	TableName string
	Where     *Clause
}

// ColumnKind distinguishes the three shapes a SELECT list item can take.
type ColumnKind uint8

const (
	ColWildcard ColumnKind = iota
	ColColumn
	ColAggregate
)

// AggregateFunc is one of the five supported aggregate functions.
type AggregateFunc string

const (
	AggCount AggregateFunc = "COUNT"
	AggSum   AggregateFunc = "SUM"
	AggAvg   AggregateFunc = "AVG"
	AggMin   AggregateFunc = "MIN"
	AggMax   AggregateFunc = "MAX"
)

// SelectColumn is one item of a SELECT list: a wildcard, a plain or
// table-qualified column reference, or an aggregate expression.
type SelectColumn struct {
	Kind ColumnKind

	Table string // ColColumn only, optional qualifier
	Name  string // ColColumn only

	Function AggregateFunc // ColAggregate only
	Argument string        // ColAggregate only: "*" or a column name
	Alias    string        // ColAggregate only: literal source text, e.g. "COUNT(*)"
}

// FromKind distinguishes a plain table source from a join source.
type FromKind uint8

const (
	FromTable FromKind = iota
	FromJoin
)

// JoinType is INNER or LEFT, per spec §4.7.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
)

// JoinOn is the `left.column = right.column` equality condition of a join.
type JoinOn struct {
	LeftColumn  string
	RightColumn string
}

// From is a SELECT statement's source: either a single table (possibly a
// CTE name, resolved by internal/exec against its data_context) or a join
// of two From sources.
type From struct {
	Kind FromKind

	Name string // FromTable only

	JoinType JoinType // FromJoin only
	Left     *From    // FromJoin only
	Right    *From    // FromJoin only
	On       JoinOn   // FromJoin only
}

// ClauseKind distinguishes the three shapes a WHERE clause node can take.
type ClauseKind uint8

const (
	ClauseAnd ClauseKind = iota
	ClauseOr
	ClauseCondition
)

// Operator is one of the six comparison operators spec §4.6 names.
type Operator string

const (
	OpEq  Operator = "="
	OpNeq Operator = "!="
	OpLt  Operator = "<"
	OpLte Operator = "<="
	OpGt  Operator = ">"
	OpGte Operator = ">="
)

// Clause is the recursive WHERE-clause shape from spec §4.6: AND/OR nodes
// over child Clauses, or a leaf condition comparing a column to a literal.
type Clause struct {
	Kind       ClauseKind
	Conditions []Clause // ClauseAnd / ClauseOr only

	Column   string        // ClauseCondition only
	Operator Operator      // ClauseCondition only
	Value    value.Value   // ClauseCondition only
}

// OrderBy is a single ORDER BY item: a column plus direction.
type OrderByDirection string

const (
	OrderAsc  OrderByDirection = "ASC"
	OrderDesc OrderByDirection = "DESC"
)

type OrderBy struct {
	Column    string
	Direction OrderByDirection
}

// Select is `SELECT columns FROM from [WHERE where] [GROUP BY group_by]
// [ORDER BY order_by]`.
type Select struct {
	Columns []SelectColumn
	From    From
	Where   *Clause // nil if absent
	GroupBy []string
	OrderBy []OrderBy
}

// NamedQuery is one `name AS (query)` entry of a WITH statement.
type NamedQuery struct {
	Name  string
	Query *Select
}

// With is `WITH ctes... <main_query>`; the main query may itself reference
// any CTE name as a From source.
type With struct {
	CTEs      []NamedQuery
	MainQuery *Select
}

// Begin, Commit, and Rollback carry no fields.
type Begin struct{}
type Commit struct{}
type Rollback struct{}

func (CreateTable) commandNode() {}
func (CreateIndex) commandNode() {}
func (Insert) commandNode()      {}
func (Update) commandNode()      {}
func (Delete) commandNode()      {}
func (*Select) commandNode()     {}
func (With) commandNode()        {}
func (Begin) commandNode()       {}
func (Commit) commandNode()      {}
func (Rollback) commandNode()    {}
