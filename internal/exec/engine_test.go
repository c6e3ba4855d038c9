package exec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/exec"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/sqlparse"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/storage"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/value"
)

func newEngine(t *testing.T) *exec.Engine {
	t.Helper()
	store, err := storage.Open(t.TempDir(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return exec.New(store)
}

func run(t *testing.T, e *exec.Engine, query string) interface{} {
	t.Helper()
	cmd, err := sqlparse.Parse(query)
	require.NoError(t, err)
	result, err := e.Execute(cmd)
	require.NoError(t, err)
	return result
}

func setupUsers(t *testing.T, e *exec.Engine) {
	t.Helper()
	run(t, e, "CREATE TABLE users (id INT PRIMARY KEY, name STR, age INT)")
	run(t, e, "INSERT INTO users VALUES (1, 'ada', 36)")
	run(t, e, "INSERT INTO users VALUES (2, 'grace', 85)")
	run(t, e, "INSERT INTO users VALUES (3, 'alan', 41)")
}

func TestImplicitTransactionCommitsOnSuccess(t *testing.T) {
	e := newEngine(t)
	setupUsers(t, e)

	rows := run(t, e, "SELECT * FROM users WHERE id = 1").([]value.Row)
	require.Len(t, rows, 1)
	assert.Equal(t, "ada", rows[0]["name"].S)
}

func TestInsertRejectsWrongArity(t *testing.T) {
	e := newEngine(t)
	run(t, e, "CREATE TABLE users (id INT PRIMARY KEY, name STR)")
	cmd, err := sqlparse.Parse("INSERT INTO users VALUES (1)")
	require.NoError(t, err)
	_, err = e.Execute(cmd)
	assert.Error(t, err)
}

func TestDeleteRequiresWhereRejectedByParser(t *testing.T) {
	_, err := sqlparse.Parse("DELETE FROM users")
	assert.Error(t, err, "DELETE without WHERE must be rejected before reaching the engine")
}

func TestUpdateAndDeleteAffectOnlyMatchingRows(t *testing.T) {
	e := newEngine(t)
	setupUsers(t, e)

	result := run(t, e, "UPDATE users SET age = 37 WHERE id = 1")
	assert.Equal(t, "1 row(s) updated.", result)

	rows := run(t, e, "SELECT * FROM users WHERE id = 1").([]value.Row)
	assert.Equal(t, int64(37), rows[0]["age"].I)

	run(t, e, "DELETE FROM users WHERE id = 2")
	rows = run(t, e, "SELECT * FROM users").([]value.Row)
	assert.Len(t, rows, 2)
}

func TestExplicitTransactionRollback(t *testing.T) {
	e := newEngine(t)
	setupUsers(t, e)

	run(t, e, "BEGIN")
	run(t, e, "INSERT INTO users VALUES (4, 'zeta', 10)")
	run(t, e, "ROLLBACK")

	rows := run(t, e, "SELECT * FROM users").([]value.Row)
	assert.Len(t, rows, 3)
}

func TestSelectIndexAssistedEqualityOnSecondaryColumn(t *testing.T) {
	e := newEngine(t)
	setupUsers(t, e)
	run(t, e, "CREATE INDEX idx_name ON users (name)")

	rows := run(t, e, "SELECT * FROM users WHERE name = 'grace'").([]value.Row)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0]["id"].I)
}

func TestSelectOrderBy(t *testing.T) {
	e := newEngine(t)
	setupUsers(t, e)

	rows := run(t, e, "SELECT * FROM users ORDER BY age DESC").([]value.Row)
	require.Len(t, rows, 3)
	assert.Equal(t, "grace", rows[0]["name"].S)
	assert.Equal(t, "ada", rows[2]["name"].S)
}

func TestSelectProjection(t *testing.T) {
	e := newEngine(t)
	setupUsers(t, e)

	rows := run(t, e, "SELECT name FROM users WHERE id = 3").([]value.Row)
	require.Len(t, rows, 1)
	assert.Equal(t, "alan", rows[0]["name"].S)
	_, hasAge := rows[0]["age"]
	assert.False(t, hasAge)
}

func TestAggregateOverWholeTable(t *testing.T) {
	e := newEngine(t)
	setupUsers(t, e)

	rows := run(t, e, "SELECT COUNT(*), AVG(age) FROM users").([]value.Row)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0]["COUNT(*)"].I)
}

func TestAggregateOnEmptyResultIsNull(t *testing.T) {
	e := newEngine(t)
	setupUsers(t, e)

	rows := run(t, e, "SELECT SUM(age) FROM users WHERE id = 999").([]value.Row)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["SUM(age)"].IsNull())
}

func TestGroupByRejectsUngroupedColumn(t *testing.T) {
	e := newEngine(t)
	run(t, e, "CREATE TABLE orders (id INT PRIMARY KEY, customer STR, amount INT)")
	run(t, e, "INSERT INTO orders VALUES (1, 'a', 10)")
	run(t, e, "INSERT INTO orders VALUES (2, 'a', 20)")
	run(t, e, "INSERT INTO orders VALUES (3, 'b', 5)")

	cmd, err := sqlparse.Parse("SELECT customer, id, SUM(amount) FROM orders GROUP BY customer")
	require.NoError(t, err)
	_, err = e.Execute(cmd)
	assert.Error(t, err)
}

func TestGroupByAggregatesPerGroup(t *testing.T) {
	e := newEngine(t)
	run(t, e, "CREATE TABLE orders (id INT PRIMARY KEY, customer STR, amount INT)")
	run(t, e, "INSERT INTO orders VALUES (1, 'a', 10)")
	run(t, e, "INSERT INTO orders VALUES (2, 'a', 20)")
	run(t, e, "INSERT INTO orders VALUES (3, 'b', 5)")

	rows := run(t, e, "SELECT customer, SUM(amount) FROM orders GROUP BY customer").([]value.Row)
	require.Len(t, rows, 2)
	totals := map[string]int64{}
	for _, r := range rows {
		totals[r["customer"].S] = r["SUM(amount)"].I
	}
	assert.Equal(t, int64(30), totals["a"])
	assert.Equal(t, int64(5), totals["b"])
}

func TestInnerJoinOnlyReturnsMatches(t *testing.T) {
	e := newEngine(t)
	run(t, e, "CREATE TABLE users (id INT PRIMARY KEY, name STR)")
	run(t, e, "CREATE TABLE orders (id INT PRIMARY KEY, user_id INT, item STR)")
	run(t, e, "INSERT INTO users VALUES (1, 'ada')")
	run(t, e, "INSERT INTO users VALUES (2, 'grace')")
	run(t, e, "INSERT INTO orders VALUES (1, 1, 'widget')")

	rows := run(t, e, "SELECT * FROM orders INNER JOIN users ON orders.user_id = users.id").([]value.Row)
	require.Len(t, rows, 1)
	assert.Equal(t, "widget", rows[0]["orders.item"].S)
	assert.Equal(t, "ada", rows[0]["users.name"].S)
}

func TestLeftJoinKeepsUnmatchedLeftRows(t *testing.T) {
	e := newEngine(t)
	run(t, e, "CREATE TABLE users (id INT PRIMARY KEY, name STR)")
	run(t, e, "CREATE TABLE orders (id INT PRIMARY KEY, user_id INT, item STR)")
	run(t, e, "INSERT INTO users VALUES (1, 'ada')")
	run(t, e, "INSERT INTO users VALUES (2, 'grace')")
	run(t, e, "INSERT INTO orders VALUES (1, 1, 'widget')")

	rows := run(t, e, "SELECT * FROM orders LEFT JOIN users ON orders.user_id = users.id").([]value.Row)

	cmd, err := sqlparse.Parse("SELECT * FROM users LEFT JOIN orders ON users.id = orders.user_id")
	require.NoError(t, err)
	result, err := e.Execute(cmd)
	require.NoError(t, err)
	joined := result.([]value.Row)
	require.Len(t, joined, 2)

	var foundNullRow bool
	for _, r := range joined {
		if r["users.name"].S == "grace" {
			assert.True(t, r["orders.item"].IsNull())
			foundNullRow = true
		}
	}
	assert.True(t, foundNullRow, "unmatched left row must still appear with null right-side columns")
	assert.Len(t, rows, 1, "inner-style order still returns the one matching pair")
}

func TestWithCTEFiltersBeforeMainQuery(t *testing.T) {
	e := newEngine(t)
	setupUsers(t, e)

	rows := run(t, e, "WITH adults AS (SELECT * FROM users WHERE age >= 40) SELECT * FROM adults ORDER BY age").([]value.Row)
	require.Len(t, rows, 2)
	assert.Equal(t, "alan", rows[0]["name"].S)
	assert.Equal(t, "grace", rows[1]["name"].S)
}
