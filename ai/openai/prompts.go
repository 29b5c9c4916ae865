package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/docanalysis/ai"
	"github.com/poiesic/docanalysis/core"
)

const analysisResponseSchema = `{
  "type": "object",
  "properties": {
    "objectives": {"type": "array", "items": {"type": "string"}},
    "scope": {
      "type": "object",
      "properties": {
        "inScope": {"type": "array", "items": {"type": "string"}},
        "outOfScope": {"type": "array", "items": {"type": "string"}}
      }
    },
    "stakeholders": {
      "type": "array",
      "items": {"type": "object", "properties": {"name": {"type": "string"}, "role": {"type": "string"}, "interest": {"type": "string"}}}
    },
    "timeline": {
      "type": "object",
      "properties": {
        "startDate": {"type": "string"},
        "endDate": {"type": "string"},
        "milestones": {"type": "array", "items": {"type": "object", "properties": {"name": {"type": "string"}, "date": {"type": "string"}, "description": {"type": "string"}}}}
      }
    },
    "resources": {
      "type": "array",
      "items": {"type": "object", "properties": {"type": {"type": "string"}, "description": {"type": "string"}, "quantity": {"type": "string"}}}
    },
    "risks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": "string"},
          "impact": {"enum": ["low", "medium", "high"]},
          "likelihood": {"enum": ["low", "medium", "high"]},
          "mitigation": {"type": "string"}
        }
      }
    },
    "dependencies": {"type": "array", "items": {"type": "string"}},
    "successCriteria": {"type": "array", "items": {"type": "string"}},
    "kpis": {
      "type": "array",
      "items": {"type": "object", "properties": {"name": {"type": "string"}, "target": {"type": "string"}, "measurement": {"type": "string"}}}
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "extractedFields": {"type": "object", "additionalProperties": {"type": "string"}}
  },
  "required": ["objectives", "scope", "stakeholders", "timeline", "resources", "risks", "dependencies", "successCriteria", "kpis", "confidence"]
}`

const analysisPromptTemplate = `You are a project analyst. Read the business document supplied by the user and
produce a structured project analysis as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- Every required key must be present. Use an empty array or empty strings when the document says nothing about a section.
- Only report what the document states or clearly implies. Do not invent stakeholders, dates or figures.
- Risk impact and likelihood must be one of "low", "medium" or "high".
- "confidence" is your certainty, from 0 to 1, that the analysis reflects the document. Lower it when the document is vague or incomplete.
- The JSON must parse without errors; no trailing commas and no extraneous text outside the object.

Depth: %s
%s
%s`

var depthInstructions = map[core.AnalysisDepth]string{
	core.DepthBasic: `Give a brief overview. List at most three items per section and keep each item to one short sentence.
Skip mitigation plans and milestone descriptions.`,
	core.DepthDetailed: `Give a thorough analysis. Cover every section the document supports, include milestone dates,
and give a mitigation for each risk.`,
	core.DepthComprehensive: `Give an exhaustive analysis. Capture every objective, stakeholder, dependency and risk the document
mentions or implies, include quantities for resources, measurable targets for every KPI,
and a concrete mitigation for each risk. Note gaps in the document as risks.`,
}

// buildSystemPrompt assembles the analysis instructions for one request.
func buildSystemPrompt(opts ai.AnalyzeOptions) string {
	depth := opts.Depth
	if _, ok := depthInstructions[depth]; !ok {
		depth = core.DepthDetailed
	}

	docContext := ""
	if opts.DocumentType != "" || opts.DocumentName != "" {
		docContext = fmt.Sprintf("\nThe document is %q, categorized as %s.", opts.DocumentName, opts.DocumentType)
	}

	return fmt.Sprintf(analysisPromptTemplate,
		analysisResponseSchema,
		depthInstructions[depth],
		buildExtractInstructions(opts.ExtractFields),
		docContext)
}

func buildExtractInstructions(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = fmt.Sprintf("%q", strings.TrimSpace(f))
	}
	return "\nAlso fill \"extractedFields\" with a string value for each of these keys, using an empty string when the document does not say: " +
		strings.Join(quoted, ", ") + "."
}
