package alert

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// render expands `{key}` placeholders in template against vars. A missing
// key leaves the placeholder literal and logs a warning - it never raises,
// since a cosmetic templating gap must not block delivery of an otherwise-
// valid alert. Deliberately not text/template: the substitution set here is
// flat key/value pairs with no control flow, and text/template's
// error-on-missing-key default would fight the graceful-fallback behavior
// wanted here.
func render(template string, vars map[string]interface{}) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			b.WriteString(template[i:])
			break
		}
		open += i
		b.WriteString(template[i:open])

		closeIdx := strings.IndexByte(template[open:], '}')
		if closeIdx < 0 {
			b.WriteString(template[open:])
			break
		}
		closeIdx += open

		key := template[open+1 : closeIdx]
		if v, ok := vars[key]; ok {
			b.WriteString(stringify(v))
		} else {
			log.Warn().Str("placeholder", key).Msg("alert template: missing key, leaving placeholder literal")
			b.WriteString(template[open : closeIdx+1])
		}
		i = closeIdx + 1
	}
	return b.String()
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// templateVars assembles the render() input: {symbol, metrics...,
// prior_period..., feature_diff...}.
func templateVars(c Candidate) map[string]interface{} {
	vars := map[string]interface{}{"symbol": c.Token}
	for k, v := range c.Metrics {
		vars[k] = v
	}
	for k, v := range c.PriorPeriod {
		vars["prior_"+k] = v
	}
	for k, v := range c.FeatureDiff {
		vars["diff_"+k] = v
	}
	return vars
}
