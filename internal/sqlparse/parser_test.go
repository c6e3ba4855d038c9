package sqlparse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/command"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/sqlparse"
)

func TestParseCreateTable(t *testing.T) {
	cmd, err := sqlparse.Parse("CREATE TABLE users (id INT PRIMARY KEY, name STR)")
	require.NoError(t, err)
	ct, ok := cmd.(command.CreateTable)
	require.True(t, ok)
	assert.Equal(t, "users", ct.TableName)
	assert.Equal(t, "id", ct.PrimaryKey)
	require.Len(t, ct.Columns, 2)
	assert.Equal(t, "name", ct.Columns[1].Name)
}

func TestParseCreateTableRejectsDuplicatePrimaryKey(t *testing.T) {
	_, err := sqlparse.Parse("CREATE TABLE users (id INT PRIMARY KEY, code INT PRIMARY KEY)")
	require.Error(t, err)
}

func TestParseCreateTableRejectsMissingPrimaryKey(t *testing.T) {
	_, err := sqlparse.Parse("CREATE TABLE users (id INT, name STR)")
	require.Error(t, err)
}

func TestParseInsert(t *testing.T) {
	cmd, err := sqlparse.Parse("INSERT INTO users VALUES (1, 'alice')")
	require.NoError(t, err)
	ins, ok := cmd.(command.Insert)
	require.True(t, ok)
	assert.Equal(t, "users", ins.TableName)
	require.Len(t, ins.Values, 2)
	assert.Equal(t, int64(1), ins.Values[0].I)
	assert.Equal(t, "alice", ins.Values[1].S)
}

func TestParseSelectWildcard(t *testing.T) {
	cmd, err := sqlparse.Parse("SELECT * FROM users WHERE id = 1")
	require.NoError(t, err)
	sel, ok := cmd.(*command.Select)
	require.True(t, ok)
	assert.Equal(t, command.ColWildcard, sel.Columns[0].Kind)
	require.NotNil(t, sel.Where)
	assert.Equal(t, command.ClauseCondition, sel.Where.Kind)
	assert.Equal(t, "id", sel.Where.Column)
	assert.Equal(t, command.OpEq, sel.Where.Operator)
}

func TestParseSelectAndOrPrecedence(t *testing.T) {
	cmd, err := sqlparse.Parse("SELECT * FROM users WHERE age > 18 AND active = 1 OR vip = 1")
	require.NoError(t, err)
	sel := cmd.(*command.Select)
	require.Equal(t, command.ClauseOr, sel.Where.Kind)
	require.Len(t, sel.Where.Conditions, 2)
	assert.Equal(t, command.ClauseAnd, sel.Where.Conditions[0].Kind)
	assert.Equal(t, command.ClauseCondition, sel.Where.Conditions[1].Kind)
}

func TestParseSelectJoin(t *testing.T) {
	cmd, err := sqlparse.Parse("SELECT * FROM orders LEFT JOIN users ON orders.user_id = users.id")
	require.NoError(t, err)
	sel := cmd.(*command.Select)
	require.Equal(t, command.FromJoin, sel.From.Kind)
	assert.Equal(t, command.JoinLeft, sel.From.JoinType)
	assert.Equal(t, "orders", sel.From.Left.Name)
	assert.Equal(t, "users", sel.From.Right.Name)
	assert.Equal(t, "user_id", sel.From.On.LeftColumn)
	assert.Equal(t, "id", sel.From.On.RightColumn)
}

func TestParseSelectGroupByAndOrderBy(t *testing.T) {
	cmd, err := sqlparse.Parse("SELECT dept, COUNT(*) FROM employees GROUP BY dept ORDER BY dept DESC")
	require.NoError(t, err)
	sel := cmd.(*command.Select)
	assert.Equal(t, []string{"dept"}, sel.GroupBy)
	require.Len(t, sel.OrderBy, 1)
	assert.Equal(t, command.OrderDesc, sel.OrderBy[0].Direction)
	require.Len(t, sel.Columns, 2)
	assert.Equal(t, command.ColAggregate, sel.Columns[1].Kind)
	assert.Equal(t, command.AggCount, sel.Columns[1].Function)
	assert.Equal(t, "COUNT(*)", sel.Columns[1].Alias)
}

func TestParseUpdate(t *testing.T) {
	cmd, err := sqlparse.Parse("UPDATE users SET name = 'bob' WHERE id = 2")
	require.NoError(t, err)
	upd := cmd.(command.Update)
	assert.Equal(t, "bob", upd.Set["name"].S)
	require.NotNil(t, upd.Where)
}

func TestParseDeleteRequiresWhere(t *testing.T) {
	_, err := sqlparse.Parse("DELETE FROM users")
	require.Error(t, err)
}

func TestParseWithCTE(t *testing.T) {
	cmd, err := sqlparse.Parse("WITH adults AS (SELECT * FROM users WHERE age >= 18) SELECT * FROM adults")
	require.NoError(t, err)
	with, ok := cmd.(command.With)
	require.True(t, ok)
	require.Len(t, with.CTEs, 1)
	assert.Equal(t, "adults", with.CTEs[0].Name)
	assert.Equal(t, "adults", with.MainQuery.From.Name)
}

func TestParseTransactionKeywords(t *testing.T) {
	for _, tc := range []struct {
		query string
		want  command.Command
	}{
		{"BEGIN", command.Begin{}},
		{"COMMIT", command.Commit{}},
		{"ROLLBACK", command.Rollback{}},
	} {
		cmd, err := sqlparse.Parse(tc.query)
		require.NoError(t, err)
		assert.Equal(t, tc.want, cmd)
	}
}

func TestParseUnknownStatementErrors(t *testing.T) {
	_, err := sqlparse.Parse("DROP TABLE users")
	require.Error(t, err)
}
