package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/agentregistry/internal/indexer"
	"github.com/roach88/agentregistry/internal/ir"
	"github.com/roach88/agentregistry/internal/ledger"
	"github.com/roach88/agentregistry/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers cannot be bound as parameters, so they are whitelisted.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // Printed for context when non-empty
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch {
			case event.HostError != "":
				fmt.Fprintf(&buf, "  [%d] %s %s %v -> %s\n", i+1, event.Caller, event.Method, event.Args, event.HostError)
			case event.Type == StepView:
				fmt.Fprintf(&buf, "  [%d] view %s %v\n", i+1, event.Method, event.Args)
			default:
				fmt.Fprintf(&buf, "  [%d] %s %s %v -> %s\n", i+1, event.Caller, event.Method, event.Args, event.Status)
			}
		}
	}

	return buf.String()
}

// AssertionContext gives assertions access to the final state.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Ledger *ledger.Ledger
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEventEmitted:
			err = assertEventEmitted(result.Trace, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Trace, assertion)
		case AssertCallOrder:
			err = assertCallOrder(result.Trace, assertion)
		case AssertPersona, AssertReceiptCount, AssertFinalState, AssertReplayConsistent:
			if actx == nil || actx.Store == nil || actx.Ledger == nil {
				err = fmt.Errorf("assertion[%d]: %s requires ledger context", i, assertion.Type)
				break
			}
			err = assertState(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func assertState(actx *AssertionContext, a Assertion) error {
	switch a.Type {
	case AssertPersona:
		return assertPersona(actx.Ctx, actx.Ledger, a)
	case AssertReceiptCount:
		return assertReceiptCount(actx.Ctx, actx.Store, a)
	case AssertFinalState:
		return assertFinalState(actx.Ctx, actx.Store, a)
	default:
		return assertReplayConsistent(actx.Ctx, actx.Store)
	}
}

func traceEvents(trace []TraceEvent) ([]ir.PersonaSetEvent, error) {
	var lines []string
	for _, ev := range trace {
		lines = append(lines, ev.Logs...)
	}
	return indexer.Scan(lines)
}

// assertEventEmitted checks that some step emitted the given event.
func assertEventEmitted(trace []TraceEvent, a Assertion) error {
	events, err := traceEvents(trace)
	if err != nil {
		return err
	}
	want := ir.PersonaSetEvent{AccountID: ir.AccountID(a.Account), CID: ir.CID(*a.CID)}
	for _, ev := range events {
		if ev == want {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventEmitted,
		Expected: fmt.Sprintf("event account_id=%s cid=%q", want.AccountID, want.CID),
		Actual:   fmt.Sprintf("not found among %d events", len(events)),
		Trace:    trace,
	}
}

func assertEventCount(trace []TraceEvent, a Assertion) error {
	events, err := traceEvents(trace)
	if err != nil {
		return err
	}
	n := 0
	for _, ev := range events {
		if a.Account == "" || ev.AccountID == ir.AccountID(a.Account) {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d events", *a.Count),
			Actual:   fmt.Sprintf("%d events", n),
			Trace:    trace,
		}
	}
	return nil
}

// assertCallOrder checks that methods appear in order among init and call
// steps that produced receipts. Steps need not be consecutive.
func assertCallOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next == len(a.Methods) {
			break
		}
		if ev.Type == StepView || ev.HostError != "" {
			continue
		}
		if ev.Method == a.Methods[next] {
			next++
		}
	}

	if next < len(a.Methods) {
		return &AssertionError{
			Type:     AssertCallOrder,
			Expected: fmt.Sprintf("calls in order: %v", a.Methods),
			Actual:   fmt.Sprintf("no %s after %v", a.Methods[next], a.Methods[:next]),
			Trace:    trace,
		}
	}
	return nil
}

func assertPersona(ctx context.Context, l *ledger.Ledger, a Assertion) error {
	cid, ok, err := l.GetPersona(ctx, ir.AccountID(a.Account))
	if err != nil {
		return fmt.Errorf("persona %s: %w", a.Account, err)
	}

	actual := "absent"
	if ok {
		actual = fmt.Sprintf("%q", cid)
	}

	if a.Absent {
		if ok {
			return &AssertionError{Type: AssertPersona, Expected: fmt.Sprintf("%s absent", a.Account), Actual: actual}
		}
		return nil
	}
	if !ok || string(cid) != *a.CID {
		return &AssertionError{
			Type:     AssertPersona,
			Expected: fmt.Sprintf("%s = %q", a.Account, *a.CID),
			Actual:   actual,
		}
	}
	return nil
}

func assertReceiptCount(ctx context.Context, st *store.Store, a Assertion) error {
	receipts, err := st.ReadReceipts(ctx, 0)
	if err != nil {
		return err
	}

	n := 0
	for _, r := range receipts {
		if a.Status == "" || string(r.Status) == a.Status {
			n++
		}
	}

	if n != *a.Count {
		what := "receipts"
		if a.Status != "" {
			what = a.Status + " receipts"
		}
		return &AssertionError{
			Type:     AssertReceiptCount,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d %s", n, what),
		}
	}
	return nil
}

func assertReplayConsistent(ctx context.Context, st *store.Store) error {
	result, err := indexer.Verify(ctx, st, st)
	if err != nil {
		return err
	}
	if !result.Consistent() {
		return &AssertionError{
			Type:     AssertReplayConsistent,
			Expected: "replayed events reproduce stored personas",
			Actual:   fmt.Sprintf("%d mismatched accounts", len(result.Mismatches)),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of a store table matches
// where and carries the expected fields (subset semantics).
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", a.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	row, err := queryOneRow(ctx, st, query, whereArgs)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   err.Error(),
		}
	}

	for _, key := range sortedFieldKeys(a.Fields) {
		expected := a.Fields[key]
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s", key, a.Table),
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// queryOneRow runs query and returns its only row as column -> value.
func queryOneRow(ctx context.Context, st *store.Store, query string, args []any) (map[string]any, error) {
	rows, err := st.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %v", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %v", err)
	}
	if !rows.Next() {
		return nil, fmt.Errorf("row not found")
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %v", err)
	}
	if rows.Next() {
		return nil, fmt.Errorf("multiple rows matched (assertion is ambiguous)")
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for a deterministic query; column names are whitelisted.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedFieldKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, where[key])
	}

	return strings.Join(clauses, " AND "), args, nil
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedFieldKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedFieldKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares a YAML value with a value scanned from SQLite.
// SQLite returns integers as int64, text as string or []byte.
func stateValuesEqual(expected, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case nil:
		return actual == nil
	case string:
		s, ok := actual.(string)
		return ok && s == exp
	case int:
		n, ok := actual.(int64)
		return ok && n == int64(exp)
	case int64:
		n, ok := actual.(int64)
		return ok && n == exp
	case bool:
		if b, ok := actual.(bool); ok {
			return b == exp
		}
		n, ok := actual.(int64)
		return ok && (n != 0) == exp
	}
	return reflect.DeepEqual(expected, actual)
}
