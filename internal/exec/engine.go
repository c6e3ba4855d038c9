// Package exec implements the execution engine from spec §4.6/§4.7:
// dispatch on the command-tree tag, implicit transactions around write
// statements, index-assisted SELECT plan selection, nested-loop joins,
// grouping/aggregation, and ORDER BY. It is grounded directly on
// execution_engine.py's ExecutionEngine class.
package exec

import (
	"errors"
	"fmt"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/command"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/dberrors"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/storage"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/value"
)

// dataContext maps a CTE name to its already-materialized rows, threaded
// through recursive execution by WITH, matching execution_engine.py's
// data_context.
type dataContext map[string][]value.Row

// Engine orchestrates command execution against one storage.Engine. It
// tracks its own local in_transaction flag, mirroring the source rather
// than querying storage.Engine.InTransaction() on every dispatch, since the
// two must stay in lockstep for implicit-transaction bookkeeping.
type Engine struct {
	store         *storage.Engine
	inTransaction bool
}

// New returns an Engine driving store.
func New(store *storage.Engine) *Engine {
	return &Engine{store: store}
}

// Execute runs one top-level command, wrapping it in an implicit
// transaction if it is a write statement and no transaction is active.
func (e *Engine) Execute(cmd command.Command) (interface{}, error) {
	return e.executeIn(cmd, dataContext{})
}

func (e *Engine) executeIn(cmd command.Command, ctx dataContext) (interface{}, error) {
	switch cmd.(type) {
	case command.Begin:
		return e.execBegin()
	case command.Commit:
		return e.execCommit()
	case command.Rollback:
		return e.execRollback()
	}

	if isWriteCommand(cmd) && !e.inTransaction {
		if _, err := e.execBegin(); err != nil {
			return nil, err
		}
		result, err := e.dispatch(cmd, ctx)
		if err != nil {
			e.execRollback()
			return nil, err
		}
		if _, err := e.execCommit(); err != nil {
			return nil, err
		}
		return result, nil
	}
	return e.dispatch(cmd, ctx)
}

func isWriteCommand(cmd command.Command) bool {
	switch cmd.(type) {
	case command.Update, command.Delete, command.CreateIndex, command.CreateTable, command.Insert:
		return true
	}
	return false
}

func (e *Engine) dispatch(cmd command.Command, ctx dataContext) (interface{}, error) {
	switch c := cmd.(type) {
	case command.Update:
		return e.execUpdate(c)
	case command.Delete:
		return e.execDelete(c)
	case command.CreateIndex:
		return e.execCreateIndex(c)
	case command.With:
		return e.execWith(c, ctx)
	case command.CreateTable:
		return e.execCreateTable(c)
	case command.Insert:
		return e.execInsert(c)
	case *command.Select:
		return e.execSelect(c, ctx)
	}
	return nil, dberrors.ErrUnknownCommand
}

func (e *Engine) execBegin() (string, error) {
	if e.inTransaction {
		return "", dberrors.ErrTransactionActive
	}
	if err := e.store.Begin(); err != nil {
		return "", err
	}
	e.inTransaction = true
	return "Transaction started.", nil
}

func (e *Engine) execCommit() (string, error) {
	if !e.inTransaction {
		return "", dberrors.ErrNoActiveTransaction
	}
	if err := e.store.Commit(); err != nil {
		return "", err
	}
	e.inTransaction = false
	return "Transaction committed.", nil
}

func (e *Engine) execRollback() (string, error) {
	if !e.inTransaction {
		return "", dberrors.ErrNoActiveTransaction
	}
	if err := e.store.Rollback(); err != nil {
		return "", err
	}
	e.inTransaction = false
	return "Transaction rolled back.", nil
}

func (e *Engine) execCreateTable(c command.CreateTable) (string, error) {
	columns := make([]value.ColumnDef, len(c.Columns))
	for i, col := range c.Columns {
		columns[i] = value.ColumnDef{Name: col.Name, Type: col.Type}
	}
	if err := e.store.CreateTable(c.TableName, columns, c.PrimaryKey); err != nil {
		return "", err
	}
	return fmt.Sprintf("Table '%s' created successfully.", c.TableName), nil
}

func (e *Engine) execCreateIndex(c command.CreateIndex) (string, error) {
	if err := e.store.CreateIndex(c.IndexName, c.TableName, c.Column); err != nil {
		return "", err
	}
	return fmt.Sprintf("Index '%s' created on table '%s'.", c.IndexName, c.TableName), nil
}

func (e *Engine) execInsert(c command.Insert) (string, error) {
	schema, err := e.store.GetTableMetadata(c.TableName)
	if err != nil {
		return "", notExistsErr(err, c.TableName)
	}
	columnNames := schema.ColumnNames()
	if len(c.Values) != len(columnNames) {
		return "", fmt.Errorf("%w: table '%s' has %d columns, but %d values were provided", dberrors.ErrWrongArity, c.TableName, len(columnNames), len(c.Values))
	}
	row := make(value.Row, len(columnNames))
	for i, name := range columnNames {
		row[name] = c.Values[i]
	}
	if err := e.store.InsertRecord(c.TableName, row); err != nil {
		return "", err
	}
	return "1 row inserted.", nil
}

func (e *Engine) execUpdate(c command.Update) (string, error) {
	records, err := e.findRecordsForModification(c.TableName, c.Where)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "0 rows updated.", nil
	}
	schema, err := e.store.GetTableMetadata(c.TableName)
	if err != nil {
		return "", err
	}
	patch := value.Row(c.Set)
	for _, record := range records {
		pkValue, _ := record.Get(schema.PrimaryKey)
		if err := e.store.UpdateRecord(c.TableName, pkValue, patch); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%d row(s) updated.", len(records)), nil
}

func (e *Engine) execDelete(c command.Delete) (string, error) {
	if c.Where == nil {
		return "", dberrors.ErrDeleteWithoutWhere
	}
	records, err := e.findRecordsForModification(c.TableName, c.Where)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "0 rows deleted.", nil
	}
	schema, err := e.store.GetTableMetadata(c.TableName)
	if err != nil {
		return "", err
	}
	for _, record := range records {
		pkValue, _ := record.Get(schema.PrimaryKey)
		if err := e.store.DeleteRecord(c.TableName, pkValue, record); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%d row(s) deleted.", len(records)), nil
}

func (e *Engine) findRecordsForModification(tableName string, where *command.Clause) ([]value.Row, error) {
	sel := &command.Select{
		Columns: []command.SelectColumn{{Kind: command.ColWildcard}},
		From:    command.From{Kind: command.FromTable, Name: tableName},
		Where:   where,
	}
	return e.execSelect(sel, dataContext{})
}

func (e *Engine) execWith(c command.With, ctx dataContext) (interface{}, error) {
	newCtx := make(dataContext, len(ctx)+len(c.CTEs))
	for k, v := range ctx {
		newCtx[k] = v
	}
	for _, cte := range c.CTEs {
		result, err := e.executeIn(cte.Query, newCtx)
		if err != nil {
			return nil, err
		}
		rows, ok := result.([]value.Row)
		if !ok {
			return nil, fmt.Errorf("%w: CTE '%s' did not produce a row set", dberrors.ErrParse, cte.Name)
		}
		newCtx[cte.Name] = rows
	}
	return e.executeIn(c.MainQuery, newCtx)
}

func notExistsErr(err error, tableName string) error {
	if errors.Is(err, dberrors.ErrTableNotFound) {
		return fmt.Errorf("%w: table '%s' does not exist", dberrors.ErrTableNotFound, tableName)
	}
	return err
}

func (e *Engine) fullScan(tableName string, ctx dataContext) ([]value.Row, error) {
	if rows, ok := ctx[tableName]; ok {
		return rows, nil
	}
	rows, err := e.store.GetAllRecords(tableName)
	if err != nil {
		return nil, notExistsErr(err, tableName)
	}
	return rows, nil
}
