package coach

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaDef is a named JSON Schema. The definition doubles as the
// structured-output hint sent to providers that accept one.
type schemaDef struct {
	name string
	def  map[string]any
}

func scoreProp(desc string) map[string]any {
	return map[string]any{"type": "number", "minimum": 0, "maximum": 100, "description": desc}
}

func stringArray(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

var feedbackSchema = schemaDef{
	name: "turn-feedback",
	def: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": scoreProp("A score from 0-100 for the user's last response based on the assessment criteria."),
			"tip": map[string]any{
				"type":        "string",
				"description": "A single, concise, and actionable tip for improvement for the user. Should be one or two sentences.",
			},
			"sampleReply": map[string]any{
				"type":        "string",
				"description": "A short example of a better way the user could have responded. Should be one or two sentences.",
			},
		},
		"required": []any{"score", "tip", "sampleReply"},
	},
}

var scorecardSchema = schemaDef{
	name: "scorecard",
	def: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"overallScore":        scoreProp("An overall score from 0-100 for the user's performance across the entire scenario."),
			"strengths":           stringArray("A list of 2-3 specific strengths the user demonstrated."),
			"areasForImprovement": stringArray("A list of 2-3 specific, actionable areas for improvement."),
			"criteriaScores": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"criterion": map[string]any{"type": "string"},
						"score":     scoreProp("Score for this criterion."),
					},
					"required": []any{"criterion", "score"},
				},
				"description": "A list of scores (0-100) for each of the specific assessment criteria.",
			},
		},
		"required": []any{"overallScore", "strengths", "areasForImprovement", "criteriaScores"},
	},
}

var personalizedSchema = schemaDef{
	name: "personalized-scenario",
	def: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scenario": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":             map[string]any{"type": "string"},
					"title":          map[string]any{"type": "string"},
					"description":    map[string]any{"type": "string", "minLength": 1},
					"persona":        map[string]any{"type": "string", "minLength": 1},
					"initialTurn":    map[string]any{"type": "string", "minLength": 1},
					"completionGoal": map[string]any{"type": "string"},
				},
				"required": []any{"description", "persona", "initialTurn"},
			},
			"personalizedGoal": map[string]any{
				"type":        []any{"string", "null"},
				"description": "The primary user goal that was used to influence the personalization, or null if none applied.",
			},
		},
		"required": []any{"scenario", "personalizedGoal"},
	},
}

var compiled sync.Map // name -> *jsonschema.Schema

// compile returns the cached compiled form of d.
func (d schemaDef) compile() (*jsonschema.Schema, error) {
	if s, ok := compiled.Load(d.name); ok {
		return s.(*jsonschema.Schema), nil
	}
	// The compiler wants a decoded JSON value, not Go ints and typed maps.
	raw, err := json.Marshal(d.def)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %q: %w", d.name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", d.name, err)
	}
	c := jsonschema.NewCompiler()
	url := "schema://" + d.name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema %q: %w", d.name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", d.name, err)
	}
	compiled.Store(d.name, s)
	return s, nil
}
