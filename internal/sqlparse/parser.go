// Package sqlparse translates a raw SQL statement string into the
// internal/command tagged-sum tree. It is a direct, regex-based
// translation of parser.py: spec §1 names the parser/SQL surface as
// explicitly out of scope for third-party grounding, so this is the one
// package in the engine built on the standard library's regexp/strings
// rather than a parser-combinator library — there is no pack dependency to
// wire here precisely because the spec itself draws that boundary.
package sqlparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/command"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/dberrors"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/value"
)

var (
	reJoin          = regexp.MustCompile(`(?i)\s+(INNER|LEFT)\s+JOIN\s+`)
	reJoinSplit     = regexp.MustCompile(`(?i)\s+(?:INNER|LEFT)\s+JOIN\s+`)
	reOnSplit       = regexp.MustCompile(`(?i)\s+ON\s+`)
	reOnCondition   = regexp.MustCompile(`^(\w+)\.(\w+)\s*=\s*(\w+)\.(\w+)`)
	reOrSplit       = regexp.MustCompile(`(?i)\s+OR\s+`)
	reAndSplit      = regexp.MustCompile(`(?i)\s+AND\s+`)
	reCondition     = regexp.MustCompile(`^((?:\w+\.)?\w+)\s*(>=|<=|!=|=|>|<)\s*(.+)$`)
	reOrderBySplit  = regexp.MustCompile(`(?i)\s+ORDER BY\s+`)
	reGroupBySplit  = regexp.MustCompile(`(?i)\s+GROUP BY\s+`)
	reWhereSplit    = regexp.MustCompile(`(?i)\s+WHERE\s+`)
	reSelect        = regexp.MustCompile(`(?i)^SELECT\s+(.+?)\s+FROM\s+(.+)$`)
	reAggregate     = regexp.MustCompile(`(?i)^(\w+)\((.+)\)$`)
	reColumn        = regexp.MustCompile(`^(?:(\w+)\.)?(\w+)$`)
	reUpdate        = regexp.MustCompile(`(?i)^UPDATE (\w+) SET (.+)$`)
	reSetPair       = regexp.MustCompile(`^(\w+)\s*=\s*(.+)$`)
	reDelete        = regexp.MustCompile(`(?i)^DELETE FROM (\w+)`)
	reCreateIndex   = regexp.MustCompile(`(?i)^CREATE INDEX (\w+) ON (\w+) \((\w+)\)$`)
	reCreateTable   = regexp.MustCompile(`(?i)^CREATE TABLE (\w+)\s*\((.+)\)$`)
	rePrimaryKey    = regexp.MustCompile(`(?i)\s+PRIMARY\s+KEY`)
	reInsert        = regexp.MustCompile(`(?i)^INSERT INTO (\w+) VALUES \((.+)\)$`)
	reCTEHead       = regexp.MustCompile(`(?i)^(\w+)\s+AS\s+\(`)
)

// Parse translates one SQL statement into a command.Command, dispatching
// on the leading keyword exactly as parser.py's Parser.parse does.
func Parse(query string) (command.Command, error) {
	q := strings.TrimSpace(query)
	upper := strings.ToUpper(q)
	switch {
	case strings.HasPrefix(upper, "UPDATE"):
		return parseUpdate(q)
	case strings.HasPrefix(upper, "DELETE FROM"):
		return parseDelete(q)
	case strings.HasPrefix(upper, "CREATE INDEX"):
		return parseCreateIndex(q)
	case strings.HasPrefix(upper, "WITH"):
		return parseWith(q)
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return parseCreateTable(q)
	case strings.HasPrefix(upper, "INSERT INTO"):
		return parseInsert(q)
	case strings.HasPrefix(upper, "SELECT"):
		return parseSelect(q)
	case strings.EqualFold(upper, "BEGIN"):
		return command.Begin{}, nil
	case strings.EqualFold(upper, "COMMIT"):
		return command.Commit{}, nil
	case strings.EqualFold(upper, "ROLLBACK"):
		return command.Rollback{}, nil
	}
	return nil, fmt.Errorf("%w: %s", dberrors.ErrParse, query)
}

func parseLiteral(raw string) value.Value {
	trimmed := strings.Trim(strings.TrimSpace(raw), `'"`)
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if f == float64(int64(f)) {
			return value.NewInt(int64(f))
		}
		return value.NewFloat(f)
	}
	return value.NewString(trimmed)
}

func parseFromClause(fromStr string) (command.From, error) {
	joinMatch := reJoin.FindStringSubmatch(fromStr)
	if joinMatch == nil {
		return command.From{Kind: command.FromTable, Name: strings.TrimSpace(fromStr)}, nil
	}
	joinType := strings.ToUpper(joinMatch[1])

	parts := reJoinSplit.Split(fromStr, 2)
	leftTableStr := parts[0]

	onSplit := reOnSplit.Split(parts[1], 2)
	if len(onSplit) != 2 {
		return command.From{}, fmt.Errorf("%w: JOIN clause requires an ON condition", dberrors.ErrParse)
	}
	rightTableStr, onConditionStr := onSplit[0], onSplit[1]

	onMatch := reOnCondition.FindStringSubmatch(strings.TrimSpace(onConditionStr))
	if onMatch == nil {
		return command.From{}, fmt.Errorf("%w: invalid ON condition, expected table1.col1 = table2.col2", dberrors.ErrParse)
	}
	_, leftCol, _, rightCol := onMatch[1], onMatch[2], onMatch[3], onMatch[4]

	left := command.From{Kind: command.FromTable, Name: strings.TrimSpace(leftTableStr)}
	right := command.From{Kind: command.FromTable, Name: strings.TrimSpace(rightTableStr)}
	return command.From{
		Kind:     command.FromJoin,
		JoinType: command.JoinType(joinType),
		Left:     &left,
		Right:    &right,
		On:       command.JoinOn{LeftColumn: leftCol, RightColumn: rightCol},
	}, nil
}

func parseWhere(whereStr string) (*command.Clause, error) {
	if whereStr == "" {
		return nil, nil
	}
	orParts := reOrSplit.Split(whereStr, -1)
	if len(orParts) == 1 {
		return parseAndGroup(orParts[0])
	}
	var orConditions []command.Clause
	for _, part := range orParts {
		clause, err := parseAndGroup(part)
		if err != nil {
			return nil, err
		}
		orConditions = append(orConditions, *clause)
	}
	return &command.Clause{Kind: command.ClauseOr, Conditions: orConditions}, nil
}

func parseAndGroup(part string) (*command.Clause, error) {
	andParts := reAndSplit.Split(part, -1)
	if len(andParts) == 1 {
		return parseSingleCondition(andParts[0])
	}
	var conditions []command.Clause
	for _, p := range andParts {
		clause, err := parseSingleCondition(p)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, *clause)
	}
	return &command.Clause{Kind: command.ClauseAnd, Conditions: conditions}, nil
}

func parseSingleCondition(conditionStr string) (*command.Clause, error) {
	match := reCondition.FindStringSubmatch(strings.TrimSpace(conditionStr))
	if match == nil {
		return nil, fmt.Errorf("%w: unsupported WHERE condition format: '%s'", dberrors.ErrParse, conditionStr)
	}
	column, operator, rawValue := match[1], match[2], match[3]
	return &command.Clause{
		Kind:     command.ClauseCondition,
		Column:   column,
		Operator: command.Operator(operator),
		Value:    parseLiteral(rawValue),
	}, nil
}

func parseSelect(query string) (*command.Select, error) {
	parts := reOrderBySplit.Split(query, 2)
	mainPart, orderByStr := parts[0], ""
	if len(parts) > 1 {
		orderByStr = parts[1]
	}
	parts = reGroupBySplit.Split(mainPart, 2)
	mainPart, groupByStr := parts[0], ""
	if len(parts) > 1 {
		groupByStr = parts[1]
	}
	parts = reWhereSplit.Split(mainPart, 2)
	mainPart, whereStr := parts[0], ""
	if len(parts) > 1 {
		whereStr = parts[1]
	}

	selectMatch := reSelect.FindStringSubmatch(mainPart)
	if selectMatch == nil {
		return nil, fmt.Errorf("%w: invalid SELECT syntax", dberrors.ErrParse)
	}
	columnsStr, fromStr := selectMatch[1], selectMatch[2]

	fromClause, err := parseFromClause(fromStr)
	if err != nil {
		return nil, err
	}
	columns, err := parseSelectColumns(columnsStr)
	if err != nil {
		return nil, err
	}
	where, err := parseWhere(whereStr)
	if err != nil {
		return nil, err
	}
	var groupBy []string
	if groupByStr != "" {
		for _, col := range strings.Split(groupByStr, ",") {
			groupBy = append(groupBy, strings.TrimSpace(col))
		}
	}
	var orderBy []command.OrderBy
	if orderByStr != "" {
		ob, err := parseOrderBy(orderByStr)
		if err != nil {
			return nil, err
		}
		orderBy = []command.OrderBy{*ob}
	}
	return &command.Select{
		Columns: columns,
		From:    fromClause,
		Where:   where,
		GroupBy: groupBy,
		OrderBy: orderBy,
	}, nil
}

func parseSelectColumns(columnsStr string) ([]command.SelectColumn, error) {
	if strings.TrimSpace(columnsStr) == "*" {
		return []command.SelectColumn{{Kind: command.ColWildcard}}, nil
	}
	var out []command.SelectColumn
	for _, colPart := range strings.Split(columnsStr, ",") {
		colPart = strings.TrimSpace(colPart)
		if aggMatch := reAggregate.FindStringSubmatch(colPart); aggMatch != nil {
			funcName := strings.ToUpper(aggMatch[1])
			switch command.AggregateFunc(funcName) {
			case command.AggCount, command.AggSum, command.AggAvg, command.AggMin, command.AggMax:
			default:
				return nil, fmt.Errorf("%w: unsupported aggregate function: %s", dberrors.ErrUnknownAggregate, funcName)
			}
			out = append(out, command.SelectColumn{
				Kind:     command.ColAggregate,
				Function: command.AggregateFunc(funcName),
				Argument: strings.TrimSpace(aggMatch[2]),
				Alias:    colPart,
			})
			continue
		}
		colMatch := reColumn.FindStringSubmatch(colPart)
		if colMatch == nil {
			return nil, fmt.Errorf("%w: invalid column name: %s", dberrors.ErrParse, colPart)
		}
		out = append(out, command.SelectColumn{Kind: command.ColColumn, Table: colMatch[1], Name: colMatch[2]})
	}
	return out, nil
}

func parseUpdate(query string) (command.Update, error) {
	parts := reWhereSplit.Split(query, 2)
	mainPart, whereStr := parts[0], ""
	if len(parts) > 1 {
		whereStr = parts[1]
	}
	match := reUpdate.FindStringSubmatch(mainPart)
	if match == nil {
		return command.Update{}, fmt.Errorf("%w: invalid UPDATE syntax, expected: UPDATE table_name SET col1 = val1, ...", dberrors.ErrParse)
	}
	tableName, setStr := match[1], match[2]
	setValues := map[string]value.Value{}
	for _, pair := range strings.Split(setStr, ",") {
		colMatch := reSetPair.FindStringSubmatch(strings.TrimSpace(pair))
		if colMatch == nil {
			return command.Update{}, fmt.Errorf("%w: invalid SET clause format: '%s'", dberrors.ErrParse, pair)
		}
		setValues[colMatch[1]] = parseLiteral(colMatch[2])
	}
	where, err := parseWhere(whereStr)
	if err != nil {
		return command.Update{}, err
	}
	return command.Update{TableName: tableName, Set: setValues, Where: where}, nil
}

func parseDelete(query string) (command.Delete, error) {
	parts := reWhereSplit.Split(query, 2)
	mainPart, whereStr := parts[0], ""
	if len(parts) > 1 {
		whereStr = parts[1]
	}
	match := reDelete.FindStringSubmatch(mainPart)
	if match == nil {
		return command.Delete{}, fmt.Errorf("%w: invalid DELETE syntax, expected: DELETE FROM table_name ...", dberrors.ErrParse)
	}
	where, err := parseWhere(whereStr)
	if err != nil {
		return command.Delete{}, err
	}
	if where == nil {
		return command.Delete{}, dberrors.ErrDeleteWithoutWhere
	}
	return command.Delete{TableName: match[1], Where: where}, nil
}

func parseCreateIndex(query string) (command.CreateIndex, error) {
	match := reCreateIndex.FindStringSubmatch(query)
	if match == nil {
		return command.CreateIndex{}, fmt.Errorf("%w: invalid CREATE INDEX syntax, expected: CREATE INDEX index_name ON table_name (column_name)", dberrors.ErrParse)
	}
	return command.CreateIndex{IndexName: match[1], TableName: match[2], Column: match[3]}, nil
}

func parseCreateTable(query string) (command.CreateTable, error) {
	match := reCreateTable.FindStringSubmatch(query)
	if match == nil {
		return command.CreateTable{}, fmt.Errorf("%w: invalid CREATE TABLE syntax", dberrors.ErrParse)
	}
	tableName, columnsStr := match[1], match[2]
	var columns []command.ColumnSpec
	primaryKey := ""
	for _, colDef := range strings.Split(columnsStr, ",") {
		colDef = strings.TrimSpace(colDef)
		isPK := false
		if rePrimaryKey.MatchString(colDef) {
			if primaryKey != "" {
				return command.CreateTable{}, dberrors.ErrDuplicatePrimaryKey
			}
			isPK = true
			colDef = strings.TrimSpace(rePrimaryKey.ReplaceAllString(colDef, ""))
		}
		parts := strings.Fields(colDef)
		if len(parts) != 2 {
			return command.CreateTable{}, fmt.Errorf("%w: invalid column definition: '%s'", dberrors.ErrParse, colDef)
		}
		colName, colType := parts[0], strings.ToUpper(parts[1])
		columns = append(columns, command.ColumnSpec{Name: colName, Type: value.ColumnType(colType)})
		if isPK {
			primaryKey = colName
		}
	}
	if primaryKey == "" {
		return command.CreateTable{}, dberrors.ErrMissingPrimaryKey
	}
	return command.CreateTable{TableName: tableName, Columns: columns, PrimaryKey: primaryKey}, nil
}

func parseWith(query string) (command.With, error) {
	q := strings.TrimSpace(strings.TrimSpace(query)[4:])
	var ctes []command.NamedQuery
	cteMatch := reCTEHead.FindStringSubmatchIndex(q)
	for cteMatch != nil {
		cteName := q[cteMatch[2]:cteMatch[3]]
		startIndex := cteMatch[1]
		openParen := 1
		endIndex := startIndex
		for i := startIndex; i < len(q); i++ {
			switch q[i] {
			case '(':
				openParen++
			case ')':
				openParen--
			}
			if openParen == 0 {
				endIndex = i
				break
			}
		}
		if openParen != 0 {
			return command.With{}, fmt.Errorf("%w: mismatched parentheses in CTE definition", dberrors.ErrParse)
		}
		subqueryStr := q[startIndex:endIndex]
		subCmd, err := Parse(subqueryStr)
		if err != nil {
			return command.With{}, err
		}
		subSelect, ok := subCmd.(*command.Select)
		if !ok {
			return command.With{}, fmt.Errorf("%w: CTE body must be a SELECT", dberrors.ErrParse)
		}
		ctes = append(ctes, command.NamedQuery{Name: cteName, Query: subSelect})
		q = strings.TrimSpace(q[endIndex+1:])
		if strings.HasPrefix(q, ",") {
			q = strings.TrimSpace(q[1:])
			cteMatch = reCTEHead.FindStringSubmatchIndex(q)
		} else {
			cteMatch = nil
		}
	}
	mainCmd, err := Parse(q)
	if err != nil {
		return command.With{}, err
	}
	mainSelect, ok := mainCmd.(*command.Select)
	if !ok {
		return command.With{}, fmt.Errorf("%w: WITH main query must be a SELECT", dberrors.ErrParse)
	}
	return command.With{CTEs: ctes, MainQuery: mainSelect}, nil
}

func parseInsert(query string) (command.Insert, error) {
	match := reInsert.FindStringSubmatch(query)
	if match == nil {
		return command.Insert{}, fmt.Errorf("%w: invalid INSERT INTO syntax", dberrors.ErrParse)
	}
	tableName, valuesStr := match[1], match[2]
	var values []value.Value
	for _, v := range strings.Split(valuesStr, ",") {
		values = append(values, parseLiteral(v))
	}
	return command.Insert{TableName: tableName, Values: values}, nil
}

func parseOrderBy(orderByStr string) (*command.OrderBy, error) {
	parts := strings.Fields(strings.TrimSpace(orderByStr))
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty ORDER BY clause", dberrors.ErrParse)
	}
	column, direction := parts[0], command.OrderAsc
	if len(parts) > 1 {
		d := command.OrderByDirection(strings.ToUpper(parts[1]))
		if d != command.OrderAsc && d != command.OrderDesc {
			return nil, fmt.Errorf("%w: invalid ORDER BY direction: '%s'", dberrors.ErrParse, parts[1])
		}
		direction = d
	}
	return &command.OrderBy{Column: column, Direction: direction}, nil
}
