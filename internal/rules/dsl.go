// Package rules implements the small boolean DSL of spec.md §4.5: a
// whitespace-delimited triple `<field> <op> <value>` evaluated against a
// NormalizedFlow. Per spec.md's design notes, this is intentionally a
// hand-rolled parse-then-match, not a general expression engine — the
// pack's only scripting engine (dop251/goja, a full JS VM carried by
// smart-mcp-proxy-mcpproxy-go) would be a poor match for a three-token
// grammar and is not wired in here; see DESIGN.md.
package rules

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/netsentinel/agent/internal/types"
)

// condition is a parsed, ready-to-evaluate rule expression.
type condition struct {
	regex *regexp.Regexp // set only for the regex(...) field form

	field string
	op    string
	value string
	set   []string // populated for `in [...]`
}

// parse compiles a rule expression. Per spec.md §4.5, a parse error never
// panics: parse returns it, and Matches logs it and treats the rule as
// non-matching.
func parse(expr string) (*condition, error) {
	expr = strings.TrimSpace(expr)

	if strings.HasPrefix(expr, "regex(") && strings.HasSuffix(expr, ")") {
		pattern := strings.TrimSuffix(strings.TrimPrefix(expr, "regex("), ")")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		return &condition{regex: re}, nil
	}

	parts := strings.Fields(expr)
	if len(parts) < 3 {
		return nil, errInvalidExpression(expr)
	}

	field := parts[0]
	op := parts[1]
	rawValue := strings.Join(parts[2:], " ")

	c := &condition{field: field, op: op}

	if op == "in" {
		value := strings.TrimSpace(rawValue)
		value = strings.TrimPrefix(value, "[")
		value = strings.TrimSuffix(value, "]")
		for _, item := range strings.Split(value, ",") {
			c.set = append(c.set, unquote(strings.TrimSpace(item)))
		}
		return c, nil
	}

	if op != "==" && op != "!=" {
		return nil, errInvalidExpression(expr)
	}
	c.value = unquote(strings.TrimSpace(rawValue))
	return c, nil
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

type errInvalidExpression string

func (e errInvalidExpression) Error() string { return "invalid rule expression: " + string(e) }

// matches evaluates the condition against a flow. Any unsupported field
// returns false, matching spec.md §4.5's "any parse error or unsupported
// field returns false" rule.
func (c *condition) matches(f types.NormalizedFlow) bool {
	if c.regex != nil {
		return c.regex.MatchString(f.SrcIP) || c.regex.MatchString(f.DstIP)
	}

	actual, ok := fieldValue(c.field, f)
	if !ok {
		return false
	}

	switch c.op {
	case "==":
		return actual == c.value
	case "!=":
		return actual != c.value
	case "in":
		for _, v := range c.set {
			if actual == v {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func fieldValue(field string, f types.NormalizedFlow) (string, bool) {
	switch field {
	case "proc.name":
		return f.ProcessName, true
	case "dst.port":
		return strconv.Itoa(int(f.DstPort)), true
	case "src.ip":
		return f.SrcIP, true
	case "dst.ip":
		return f.DstIP, true
	default:
		return "", false
	}
}

// Matches evaluates a raw expression string against a flow, parsing it
// fresh each call. Matches is referentially transparent for a fixed
// expression and flow (spec.md §8 property 3).
func Matches(expression string, f types.NormalizedFlow) bool {
	c, err := parse(expression)
	if err != nil {
		slog.Warn("rules: failed to parse expression, treating as non-matching", "expression", expression, "error", err)
		return false
	}
	return c.matches(f)
}
