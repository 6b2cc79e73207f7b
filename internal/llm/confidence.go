package llm

import "github.com/joseph-ayodele/compliance-tracker/internal/niche"

const (
	FlagMissingRequired = "missing_required"
	FlagInvalidType     = "invalid_type"

	confidenceTypeOK   = 0.95
	confidenceTypeFail = 0.5
)

// Score derives per-field confidence for cleaned values.
// modelConf holds the optional "_confidence" object from the response.
func Score(schema niche.ExtractionSchema, fields map[string]any, modelConf map[string]any) (map[string]float64, map[string]string) {
	conf := make(map[string]float64, len(schema.Fields))
	flags := map[string]string{}
	for _, f := range schema.Fields {
		v := fields[f.Name]
		if v == nil {
			if f.Required {
				conf[f.Name] = 0
				flags[f.Name] = FlagMissingRequired
			} else {
				conf[f.Name] = 1.0
			}
			continue
		}
		typeErr := ValidateType(f.Type, v)
		if typeErr != nil {
			flags[f.Name] = FlagInvalidType
		}
		if mc, ok := niche.ToFloat(modelConf[f.Name]); ok && mc >= 0 && mc <= 1 {
			conf[f.Name] = mc
			continue
		}
		if typeErr != nil {
			conf[f.Name] = confidenceTypeFail
		} else {
			conf[f.Name] = confidenceTypeOK
		}
	}
	return conf, flags
}

// Overall is the weighted mean of field confidences: required fields weigh 2, optional 1.
// Fields absent from conf count as 0. An empty schema scores 0.
func Overall(schema niche.ExtractionSchema, conf map[string]float64) float64 {
	var sum, weight float64
	for _, f := range schema.Fields {
		w := 1.0
		if f.Required {
			w = 2.0
		}
		sum += w * conf[f.Name]
		weight += w
	}
	if weight == 0 {
		return 0
	}
	out := sum / weight
	switch {
	case out < 0:
		return 0
	case out > 1:
		return 1
	}
	return out
}
