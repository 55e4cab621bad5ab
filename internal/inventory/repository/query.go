package repository

import (
	"fmt"
	"strings"
)

// whereBuilder accumulates AND-ed conditions with positional arguments
type whereBuilder struct {
	conds []string
	args  []interface{}
}

// add appends a condition. Each "?" takes the next argument; with a single
// argument every "?" refers to it.
func (w *whereBuilder) add(cond string, args ...interface{}) {
	if len(args) == 1 {
		cond = strings.ReplaceAll(cond, "?", w.next(args[0]))
	} else {
		for _, a := range args {
			cond = strings.Replace(cond, "?", w.next(a), 1)
		}
	}
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// next returns the placeholder for an argument appended after the conditions
func (w *whereBuilder) next(arg interface{}) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(search)) + "%"
}

func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
