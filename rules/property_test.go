package rules

import (
	"context"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/liamcoop/formrules/fieldpath"
)

// TestEvaluateRulesPurity verifies repeated passes over the same input are identical.
// Property: EvaluateRules(d, f) == EvaluateRules(d, f) and d is unchanged
func TestEvaluateRulesPurity(t *testing.T) {
	engine := newTestEngine(t,
		HideWhen("minor", "consent", InRange("age", nil, Bound(17))).WithPriority(2),
		ShowWhen("adult", "consent", InRange("age", Bound(18), nil)),
		SetEnumWhen("ca", "region", []any{"ON", "QC", "BC"}, Equals("country", "CA")),
		SetRangeWhen("cap", "amount", Bound(0), Bound(1000), Not(Exists("vip"))),
		DisableWhen("tagged", "notes", Contains("tags", "locked")),
		ReadonlyWhen("expr", "amount", Expression(`has(data.vip) && data.vip == true`, "")),
		EnableWhen("either", "notes", Or(Exists("vip"), Contains("country", "U"))),
	)

	fields := []string{"", "age", "country", "vip", "tags", "amount", "notes"}
	countries := []string{"CA", "US", "", "UK"}
	tags := []string{"locked", "open", ""}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("evaluation is a pure function of its input", prop.ForAll(
		func(age, country int, vip bool, tag, field int) bool {
			data := map[string]any{
				"age":     age,
				"country": countries[country],
				"tags":    []any{tags[tag], "other"},
			}
			if vip {
				data["vip"] = true
			}
			before := fieldpath.Clone(data)
			changed := fields[field]

			first := engine.EvaluateRules(context.Background(), data, changed)
			second := engine.EvaluateRules(context.Background(), data, changed)

			return reflect.DeepEqual(first, second) && reflect.DeepEqual(before, data)
		},
		gen.IntRange(-5, 120),
		gen.IntRange(0, len(countries)-1),
		gen.Bool(),
		gen.IntRange(0, len(tags)-1),
		gen.IntRange(0, len(fields)-1),
	))

	properties.TestingRun(t)
}
