package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// UpdateColumns writes updates to the row of table identified by id and
// always bumps updated_at. Column names come from code, never from input.
// It returns the number of rows affected.
func UpdateColumns(ctx context.Context, q Querier, table string, id int64, updates map[string]interface{}) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	fields := make([]string, 0, len(updates))
	for field := range updates {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	setClauses := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+2)
	argPos := 1
	for _, field := range fields {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field, argPos))
		args = append(args, updates[field])
		argPos++
	}
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now())
	argPos++
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, strings.Join(setClauses, ", "), argPos)
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
