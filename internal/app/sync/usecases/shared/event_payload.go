package shared

import (
	"encoding/json"

	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
)

// MarshalResultsPayload converts one batch's per-item results into the
// JSON payload persisted with a sync event. Only inert diagnostics are
// serialized, never raw payloads.
func MarshalResultsPayload(batch string, results []domain.Result) (string, error) {
	items := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		if res.Failed() {
			item := map[string]interface{}{
				"ok":    false,
				"value": res.Err.Value,
				"kind":  string(res.Err.Kind),
				"error": res.Err.Message,
			}
			if res.Err.StatusCode != 0 {
				item["status_code"] = res.Err.StatusCode
			}
			if len(res.Err.Violations) > 0 {
				item["violations"] = res.Err.Violations
			}
			if len(res.Err.APIErrors) > 0 {
				apiErrs := make([]map[string]string, 0, len(res.Err.APIErrors))
				for _, ae := range res.Err.APIErrors {
					apiErrs = append(apiErrs, map[string]string{
						"code":      ae.Code,
						"message":   ae.Message,
						"parameter": ae.Parameter,
					})
				}
				item["api_errors"] = apiErrs
			}
			items = append(items, item)
			continue
		}

		item := map[string]interface{}{
			"ok": true,
			"id": res.Entity.ID,
		}
		if res.Entity.ExternalCode != "" {
			item["external_code"] = res.Entity.ExternalCode
		}
		items = append(items, item)
	}

	payload := map[string]interface{}{
		"batch":   batch,
		"total":   len(results),
		"results": items,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MarshalRunErrorPayload captures a run-level failure.
func MarshalRunErrorPayload(stage, message string) (string, error) {
	b, err := json.Marshal(map[string]interface{}{
		"stage": stage,
		"error": message,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
