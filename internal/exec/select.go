package exec

import (
	"fmt"
	"sort"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/command"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/dberrors"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/value"
)

func (e *Engine) execSelect(sel *command.Select, ctx dataContext) ([]value.Row, error) {
	initial, err := e.selectPlan(sel, ctx)
	if err != nil {
		return nil, err
	}
	results, err := filterRecords(initial, sel.Where)
	if err != nil {
		return nil, err
	}

	hasAggregate := false
	for _, col := range sel.Columns {
		if col.Kind == command.ColAggregate {
			hasAggregate = true
			break
		}
	}

	if len(sel.GroupBy) > 0 {
		results, err = e.performGrouping(sel.Columns, sel.GroupBy, results)
		if err != nil {
			return nil, err
		}
	} else if hasAggregate {
		results, err = performAggregation(aggregatesOf(sel.Columns), results)
		if err != nil {
			return nil, err
		}
	}
	if !hasAggregate {
		results = projectColumns(results, sel.Columns)
	}
	if len(sel.OrderBy) > 0 && len(results) > 0 {
		if err := orderResults(results, sel.OrderBy[0]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// selectPlan chooses the initial record set per spec §4.6: an
// index-assisted point lookup when the WHERE shape allows it, a join, a
// full scan, or (for a CTE name) the materialized rows in ctx.
func (e *Engine) selectPlan(sel *command.Select, ctx dataContext) ([]value.Row, error) {
	where := sel.Where
	_, isCTE := ctx[sel.From.Name]
	canUseIndex := where != nil && sel.From.Kind == command.FromTable && !isCTE && where.Kind != command.ClauseOr
	if canUseIndex {
		tableName := sel.From.Name
		var indexCheck *command.Clause
		switch {
		case where.Kind == command.ClauseCondition:
			indexCheck = where
		case where.Kind == command.ClauseAnd && len(where.Conditions) > 0:
			indexCheck = &where.Conditions[0]
		}
		if indexCheck != nil && indexCheck.Operator == command.OpEq {
			rows, used, err := e.indexProbe(tableName, indexCheck)
			if err != nil {
				return nil, err
			}
			if used {
				return rows, nil
			}
		}
	}

	if sel.From.Kind == command.FromJoin {
		return e.execJoin(sel.From, ctx)
	}
	return e.fullScan(sel.From.Name, ctx)
}

// indexProbe attempts the PK/secondary-index point lookup. used reports
// whether an index-assisted plan applied at all (even if it found nothing).
func (e *Engine) indexProbe(tableName string, cond *command.Clause) (rows []value.Row, used bool, err error) {
	schema, err := e.store.GetTableMetadata(tableName)
	if err != nil {
		return nil, false, notExistsErr(err, tableName)
	}
	if cond.Column == schema.PrimaryKey {
		row, found, err := e.store.SearchPK(tableName, cond.Value)
		if err != nil {
			return nil, false, err
		}
		if found {
			return []value.Row{row}, true, nil
		}
		return nil, true, nil
	}
	for indexName, column := range schema.Indexes {
		if cond.Column != column {
			continue
		}
		pkValue, found, err := e.store.SearchIndex(indexName, cond.Value)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, true, nil
		}
		row, found, err := e.store.SearchPK(tableName, pkValue)
		if err != nil {
			return nil, false, err
		}
		if found {
			return []value.Row{row}, true, nil
		}
		return nil, true, nil
	}
	return nil, false, nil
}

// execJoin performs the nested-loop join from spec §4.7: full scan on both
// sides, no index probe on the join key.
func (e *Engine) execJoin(from command.From, ctx dataContext) ([]value.Row, error) {
	leftName, rightName := from.Left.Name, from.Right.Name
	leftRecords, err := e.fullScan(leftName, ctx)
	if err != nil {
		return nil, err
	}
	rightRecords, err := e.fullScan(rightName, ctx)
	if err != nil {
		return nil, err
	}
	rightSchema, err := e.store.GetTableMetadata(rightName)
	if err != nil {
		return nil, err
	}
	nullRightRow := make(value.Row, len(rightSchema.Columns))
	for _, col := range rightSchema.ColumnNames() {
		nullRightRow[rightName+"."+col] = value.NullValue
	}

	var joined []value.Row
	for _, l := range leftRecords {
		matched := false
		lVal, _ := l.Get(from.On.LeftColumn)
		for _, r := range rightRecords {
			rVal, _ := r.Get(from.On.RightColumn)
			if !lVal.Equal(rVal) {
				continue
			}
			matched = true
			newRow := make(value.Row, len(l)+len(r))
			for col, val := range l {
				newRow[leftName+"."+col] = val
			}
			for col, val := range r {
				newRow[rightName+"."+col] = val
			}
			joined = append(joined, newRow)
		}
		if !matched && from.JoinType == command.JoinLeft {
			newRow := make(value.Row, len(l)+len(nullRightRow))
			for col, val := range l {
				newRow[leftName+"."+col] = val
			}
			for k, v := range nullRightRow {
				newRow[k] = v
			}
			joined = append(joined, newRow)
		}
	}
	return joined, nil
}

func filterRecords(records []value.Row, clause *command.Clause) ([]value.Row, error) {
	if clause == nil {
		return records, nil
	}
	out := make([]value.Row, 0, len(records))
	for _, r := range records {
		if evaluateClause(r, clause) {
			out = append(out, r)
		}
	}
	return out, nil
}

func evaluateClause(record value.Row, clause *command.Clause) bool {
	switch clause.Kind {
	case command.ClauseOr:
		for i := range clause.Conditions {
			if evaluateClause(record, &clause.Conditions[i]) {
				return true
			}
		}
		return false
	case command.ClauseAnd:
		for i := range clause.Conditions {
			if !evaluateClause(record, &clause.Conditions[i]) {
				return false
			}
		}
		return true
	case command.ClauseCondition:
		recordVal, found := record.Get(clause.Column)
		if !found || recordVal.IsNull() {
			return false
		}
		return compareOperator(recordVal, clause.Operator, clause.Value)
	}
	return false
}

// compareOperator applies one comparison operator. A type mismatch between
// the record value and the literal is not an error: for the ordering
// operators it yields false (`=` is false and `!=` is true), per
// spec §4.6 ("a type mismatch ... is not an error — the comparison yields
// false"), matching execution_engine.py's TypeError-catching op_func call.
func compareOperator(a value.Value, operator command.Operator, b value.Value) bool {
	switch operator {
	case command.OpEq:
		return a.Equal(b)
	case command.OpNeq:
		return !a.Equal(b)
	}
	if !comparableKinds(a, b) {
		return false
	}
	cmp := value.Compare(a, b)
	switch operator {
	case command.OpLt:
		return cmp < 0
	case command.OpLte:
		return cmp <= 0
	case command.OpGt:
		return cmp > 0
	case command.OpGte:
		return cmp >= 0
	}
	return false
}

func comparableKinds(a, b value.Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	return a.Kind == b.Kind
}

func projectColumns(records []value.Row, columns []command.SelectColumn) []value.Row {
	if len(records) == 0 {
		return records
	}
	for _, p := range columns {
		if p.Kind == command.ColWildcard {
			return records
		}
	}
	out := make([]value.Row, 0, len(records))
	for _, record := range records {
		newRecord := make(value.Row, len(columns))
		for _, part := range columns {
			if part.Kind != command.ColColumn {
				continue
			}
			colKey := part.Name
			if part.Table != "" {
				colKey = part.Table + "." + part.Name
			}
			if v, ok := record[colKey]; ok {
				newRecord[colKey] = v
				continue
			}
			if k, v, ok := findSuffixKey(record, part.Name); ok {
				newRecord[k] = v
				continue
			}
			newRecord[part.Name] = value.NullValue
		}
		out = append(out, newRecord)
	}
	return out
}

func findSuffixKey(record value.Row, name string) (string, value.Value, bool) {
	suffix := "." + name
	for k, v := range record {
		if len(k) > len(suffix) && k[len(k)-len(suffix):] == suffix {
			return k, v, true
		}
	}
	return "", value.Value{}, false
}

func aggregatesOf(columns []command.SelectColumn) []command.SelectColumn {
	var out []command.SelectColumn
	for _, c := range columns {
		if c.Kind == command.ColAggregate {
			out = append(out, c)
		}
	}
	return out
}

// performGrouping validates that every plain-column SELECT item is listed
// in GROUP BY, buckets records by the tuple of group-by values (in
// first-seen order, matching defaultdict's insertion order), and emits one
// row per group carrying the group-by values plus any aggregates.
func (e *Engine) performGrouping(columns []command.SelectColumn, groupBy []string, records []value.Row) ([]value.Row, error) {
	groupByCols := make(map[string]bool, len(groupBy))
	for _, c := range groupBy {
		groupByCols[c] = true
	}
	for _, p := range columns {
		if p.Kind == command.ColColumn && !groupByCols[p.Name] {
			return nil, dberrors.ErrUngroupedColumn
		}
	}

	type bucket struct {
		values []value.Value
		rows   []value.Row
	}
	order := make([]string, 0)
	buckets := make(map[string]*bucket)
	for _, record := range records {
		values := make([]value.Value, len(groupBy))
		for i, col := range groupBy {
			v, _ := record.Get(col)
			values[i] = v
		}
		key := groupKey(values)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{values: values}
			buckets[key] = b
			order = append(order, key)
		}
		b.rows = append(b.rows, record)
	}

	aggregates := aggregatesOf(columns)
	results := make([]value.Row, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		row := make(value.Row, len(groupBy)+len(aggregates))
		for i, col := range groupBy {
			row[col] = b.values[i]
		}
		if len(aggregates) > 0 {
			aggRows, err := performAggregation(aggregates, b.rows)
			if err != nil {
				return nil, err
			}
			for k, v := range aggRows[0] {
				row[k] = v
			}
		}
		results = append(results, row)
	}
	return results, nil
}

func groupKey(values []value.Value) string {
	key := ""
	for _, v := range values {
		key += fmt.Sprintf("\x1f%d:%s", v.Kind, v.String())
	}
	return key
}

// performAggregation computes COUNT/SUM/AVG/MIN/MAX over records, matching
// execution_engine.py's _perform_aggregation: an empty record set yields
// null for every non-COUNT aggregate.
func performAggregation(aggregates []command.SelectColumn, records []value.Row) ([]value.Row, error) {
	if len(records) == 0 {
		onlyCount := true
		for _, agg := range aggregates {
			if agg.Function != command.AggCount {
				onlyCount = false
				break
			}
		}
		if !onlyCount {
			row := make(value.Row, len(aggregates))
			for _, agg := range aggregates {
				if agg.Function == command.AggCount {
					row[agg.Alias] = value.NewInt(0)
					continue
				}
				row[agg.Alias] = value.NullValue
			}
			return []value.Row{row}, nil
		}
	}

	row := make(value.Row, len(aggregates))
	for _, agg := range aggregates {
		switch agg.Function {
		case command.AggCount:
			if agg.Argument == "*" {
				row[agg.Alias] = value.NewInt(int64(len(records)))
				continue
			}
			count := int64(0)
			for _, r := range records {
				if v, ok := r.Get(agg.Argument); ok && !v.IsNull() {
					count++
				}
			}
			row[agg.Alias] = value.NewInt(count)
		case command.AggSum, command.AggAvg, command.AggMin, command.AggMax:
			nums, allInt := numericValues(records, agg.Argument)
			if len(nums) == 0 {
				row[agg.Alias] = value.NullValue
				continue
			}
			row[agg.Alias] = reduceNumeric(agg.Function, nums, allInt)
		default:
			return nil, dberrors.ErrUnknownAggregate
		}
	}
	return []value.Row{row}, nil
}

func numericValues(records []value.Row, column string) (nums []float64, allInt bool) {
	allInt = true
	for _, r := range records {
		v, ok := r.Get(column)
		if !ok || v.IsNull() || !v.IsNumeric() {
			continue
		}
		nums = append(nums, v.Float64())
		if v.Kind != value.Int {
			allInt = false
		}
	}
	return nums, allInt
}

func reduceNumeric(fn command.AggregateFunc, nums []float64, allInt bool) value.Value {
	switch fn {
	case command.AggSum:
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		return numericResult(sum, allInt)
	case command.AggAvg:
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		return value.NewFloat(sum / float64(len(nums)))
	case command.AggMin:
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return numericResult(m, allInt)
	case command.AggMax:
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return numericResult(m, allInt)
	}
	return value.NullValue
}

func numericResult(f float64, allInt bool) value.Value {
	if allInt {
		return value.NewInt(int64(f))
	}
	return value.NewFloat(f)
}

func orderResults(results []value.Row, ob command.OrderBy) error {
	if _, found := results[0].Get(ob.Column); !found {
		return fmt.Errorf("%w: '%s'", dberrors.ErrOrderColumnNotFound, ob.Column)
	}
	sort.SliceStable(results, func(i, j int) bool {
		vi, _ := results[i].Get(ob.Column)
		vj, _ := results[j].Get(ob.Column)
		cmp := value.Compare(vi, vj)
		if ob.Direction == command.OrderDesc {
			return cmp > 0
		}
		return cmp < 0
	})
	return nil
}
